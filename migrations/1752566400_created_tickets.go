package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("tickets")

		// API rules stay nil: only superusers reach the collection directly,
		// everything else goes through the scan and issuance routes.
		collection.Fields.Add(
			&core.TextField{Name: "ticket_id", Required: true, Max: 128},
			&core.TextField{Name: "order_id", Max: 128},
			&core.TextField{Name: "category_id", Max: 128},
			&core.TextField{Name: "price", Max: 32, Pattern: `^\d+\.\d{2}$`},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"ACTIVE", "USED", "CANCELLED"},
			},
			&core.DateField{Name: "used_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_tickets_ticket_id", true, "ticket_id", "")
		collection.AddIndex("idx_tickets_status", false, "status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
