package internal

import (
	"context"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/catalog"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/chatbot"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/env"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/log"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/whatsapp"

	ctlFollowUp "github.com/tambongslade/pos-whatsapp-gateway/internal/followup"
	ctlInvoice "github.com/tambongslade/pos-whatsapp-gateway/internal/invoice"
	ctlMessaging "github.com/tambongslade/pos-whatsapp-gateway/internal/messaging"
	ctlSession "github.com/tambongslade/pos-whatsapp-gateway/internal/session"
)

var (
	gateway      *whatsapp.Manager
	catalogStore *catalog.Store
)

// Gateway exposes the session manager to the routines and shutdown path.
func Gateway() *whatsapp.Manager {
	return gateway
}

// Startup builds the product catalog, the responder and the session manager,
// wires them into the controllers and connects the WhatsApp session.
func Startup() {
	log.Print(nil).Info("Running Startup Tasks")

	// Product catalog is optional: without POS_DATABASE_URI the chatbot and
	// the live low-stock report are unavailable, everything else works.
	posDSN := env.GetEnvStringOrDefault("POS_DATABASE_URI", "")
	if posDSN != "" {
		posDriver := env.GetEnvStringOrDefault("POS_DATABASE_TYPE", "postgres")
		store, err := catalog.Open(posDriver, posDSN)
		if err != nil {
			log.Print(nil).WithError(err).Fatal("Failed to open POS catalog database")
		}
		catalogStore = store
		log.Print(nil).Info("POS catalog connected with driver=" + catalog.NormalizeDriver(posDriver))
	} else {
		log.Print(nil).Warn("POS_DATABASE_URI not set; chatbot and live low-stock reports disabled")
	}

	var responder whatsapp.Responder
	if catalogStore != nil {
		responder = chatbot.New(catalogStore)
	}

	gateway = whatsapp.NewManager(whatsapp.ConfigFromEnv(), responder)

	ctlSession.Init(gateway)
	ctlMessaging.Init(gateway)
	ctlInvoice.Init(gateway, catalogStore)
	ctlFollowUp.Init(gateway)

	// Start only fails on datastore problems; connection failures are retried
	// internally and never reach this point.
	if err := gateway.Start(context.Background()); err != nil {
		log.Print(nil).WithError(err).Fatal("Failed to open WhatsApp session datastore")
	}
}

// Shutdown flushes credentials and disconnects the session.
func Shutdown() {
	if gateway != nil {
		gateway.Shutdown()
	}
	if catalogStore != nil {
		_ = catalogStore.Close()
	}
}
