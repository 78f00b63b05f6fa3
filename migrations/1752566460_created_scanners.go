package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// Gate devices authenticate as scanners. Accounts are provisioned by a
// superuser, so every rule stays nil.
func init() {
	m.Register(func(app core.App) error {
		collection := core.NewAuthCollection("scanners")

		collection.Fields.Add(
			&core.TextField{Name: "gate", Max: 64},
			&core.TextField{Name: "event_id", Max: 128},
		)
		collection.AddIndex("idx_scanners_event_id", false, "event_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("scanners")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
