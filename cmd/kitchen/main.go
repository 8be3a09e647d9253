package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/api/internal/client"
	"github.com/comanda-pos/api/internal/config"
	"github.com/comanda-pos/api/internal/poller"
	"github.com/comanda-pos/api/internal/printing"
	"github.com/comanda-pos/api/internal/ticket"
)

// The kitchen station: logs in, polls the platform for new orders and prints
// a comanda for each one exactly once.
func main() {
	tenant := flag.String("tenant", "", "Tenant slug")
	email := flag.String("email", "", "Kitchen account email")
	password := flag.String("password", "", "Kitchen account password")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
	cfg := config.Load()

	if *tenant == "" {
		*tenant = os.Getenv("KITCHEN_TENANT")
	}
	if *email == "" {
		*email = os.Getenv("KITCHEN_EMAIL")
	}
	if *password == "" {
		*password = os.Getenv("KITCHEN_PASSWORD")
	}
	if *tenant == "" || *email == "" || *password == "" {
		log.Fatal("tenant, email and password are required (flags or KITCHEN_* env)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	api := client.New(cfg.ServerURL, cfg.FetchTimeout)
	session, err := api.Login(ctx, *tenant, *email, *password)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	log.Printf("Connected as %s (%s)", session.User.FullName, session.Tenant.Name)

	dispatcher := printing.NewDispatcher(cfg.TicketDir,
		printing.DefaultPaths(cfg.PrinterName, os.TempDir())...)

	p := poller.New(api, poller.Options{
		Interval:     cfg.PollInterval,
		FetchTimeout: cfg.FetchTimeout,
		Print: func(ctx context.Context, o client.KitchenOrder) {
			if !cfg.AutoPrint {
				return
			}
			t := toTicket(o, session.Tenant.Name)
			outcome := dispatcher.Dispatch(ctx, t, ticket.RenderKitchen(t))
			if outcome.Printed {
				log.Printf("Printed order %s via %s", o.OrderNumber, outcome.Path)
			} else {
				log.Printf("Order %s not printed, audit copy at %s", o.OrderNumber, outcome.AuditFile)
			}
		},
		OnUpdate: func(orders []client.KitchenOrder, degraded bool) {
			if degraded {
				log.Println("SIN CONEXION: fetch failed, keeping last state")
				return
			}
			log.Printf("%d active order(s)", len(orders))
		},
	})

	log.Printf("Polling %s every %s", cfg.ServerURL, cfg.PollInterval)
	p.Run(ctx)
	log.Println("Kitchen station stopped")
}

func toTicket(o client.KitchenOrder, tenantName string) ticket.Ticket {
	total, err := decimal.NewFromString(o.Total)
	if err != nil {
		total = decimal.Zero
	}

	// Fecha/Hora on the comanda are the moment of printing, not of ordering.
	t := ticket.Ticket{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		TenantName:  tenantName,
		Fulfillment: o.FulfillmentType,
		Total:       total,
		PrintedAt:   time.Now(),
	}
	if o.CustomerName != nil {
		t.Customer = *o.CustomerName
	}
	if o.CustomerPhone != nil {
		t.Phone = *o.CustomerPhone
	}
	if o.DeliveryAddress != nil {
		t.Address = *o.DeliveryAddress
	}
	if o.Notes != nil {
		t.Notes = *o.Notes
	}
	for _, item := range o.Items {
		ti := ticket.Item{Quantity: item.Quantity, Name: item.ProductName}
		if item.DisplayNote != nil {
			ti.DisplayNote = *item.DisplayNote
		}
		t.Items = append(t.Items, ti)
	}
	return t
}
