package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/funnelbackend/lib/myhttpclient"
	"github.com/MarcGrol/funnelbackend/lib/mypublisher"
	"github.com/MarcGrol/funnelbackend/lib/mypubsub"
	"github.com/MarcGrol/funnelbackend/lib/myqueue"
	"github.com/MarcGrol/funnelbackend/lib/mystore"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
	"github.com/MarcGrol/funnelbackend/lib/myuuid"
	"github.com/MarcGrol/funnelbackend/lib/myworkflow"
	"github.com/MarcGrol/funnelbackend/services/crmsync"
	"github.com/MarcGrol/funnelbackend/services/funnelapi"
	"github.com/MarcGrol/funnelbackend/services/gatewayadyen"
	"github.com/MarcGrol/funnelbackend/services/gatewayapi"
	"github.com/MarcGrol/funnelbackend/services/gatewaymollie"
	"github.com/MarcGrol/funnelbackend/services/gatewaystripe"
	"github.com/MarcGrol/funnelbackend/services/payment"
	"github.com/MarcGrol/funnelbackend/services/session"
	"github.com/MarcGrol/funnelbackend/services/syncretry"
	"github.com/MarcGrol/funnelbackend/services/upsell"
	"github.com/MarcGrol/funnelbackend/services/warmup"
)

func main() {
	c := context.Background()

	router := mux.NewRouter()

	nower := mytime.RealNower{}
	uuider := myuuid.RealUUIDer{}

	queuer, queuerCleanup, err := myqueue.New(c)
	if err != nil {
		log.Fatalf("Error creating task queue: %s", err)
	}
	defer queuerCleanup()

	subscriber, subscriberCleanup, err := mypubsub.New(c)
	if err != nil {
		log.Fatalf("Error creating pubsub: %s", err)
	}
	defer subscriberCleanup()

	publisher, publisherCleanup, err := mypublisher.New(c, subscriber, queuer, nower)
	if err != nil {
		log.Fatalf("Error creating publisher: %s", err)
	}
	defer publisherCleanup()
	publisher.RegisterEndpoints(c, router)

	engine, engineCleanup, err := myworkflow.NewEngine(c, nower,
		myworkflow.Spec{Name: payment.WorkflowName, MaxAttempts: 3, MaxConcurrency: 50, StepTimeout: 30 * time.Second},
		myworkflow.Spec{Name: upsell.WorkflowName, MaxAttempts: 3, MaxConcurrency: 30, StepTimeout: 30 * time.Second},
		myworkflow.Spec{Name: crmsync.WorkflowName, MaxAttempts: 1, MaxConcurrency: 20, StepTimeout: 30 * time.Second},
		myworkflow.Spec{Name: syncretry.WorkflowName, MaxAttempts: 1, MaxConcurrency: 5, StepTimeout: 30 * time.Second},
	)
	if err != nil {
		log.Fatalf("Error creating workflow engine: %s", err)
	}
	defer engineCleanup()

	sessionStore, sessionStoreCleanup, err := mystore.New[funnelapi.Session](c)
	if err != nil {
		log.Fatalf("Error creating session store: %s", err)
	}
	defer sessionStoreCleanup()
	sessions := session.NewSessionStore(sessionStore, nower, uuider)

	gateway, err := createGateway()
	if err != nil {
		log.Fatalf("Error creating payment gateway: %s", err)
	}

	orderPrefix := os.Getenv("ORDER_PREFIX")
	if orderPrefix == "" {
		orderPrefix = "ORD"
	}

	sessionService := session.NewWebService(sessions)
	sessionService.RegisterEndpoints(c, router)

	paymentService := payment.NewWebService(sessions, gateway, engine, publisher, nower, orderPrefix)
	err = paymentService.RegisterEndpoints(c, router)
	if err != nil {
		log.Fatalf("Error registering payment endpoints: %s", err)
	}

	upsellService := upsell.NewWebService(sessions, gateway, engine, publisher, nower, orderPrefix)
	err = upsellService.RegisterEndpoints(c, router)
	if err != nil {
		log.Fatalf("Error registering upsell endpoints: %s", err)
	}

	crmClient := crmsync.NewCRMClient(myhttpclient.New(), os.Getenv("CRM_BASE_URL"), os.Getenv("CRM_API_KEY"))
	crmService := crmsync.NewWebService(crmClient, engine, publisher, subscriber, nower)
	err = crmService.RegisterEndpoints(c, router)
	if err != nil {
		log.Fatalf("Error registering crm sync endpoints: %s", err)
	}

	retryStore, retryStoreCleanup, err := mystore.New[syncretry.RetryRecord](c)
	if err != nil {
		log.Fatalf("Error creating retry store: %s", err)
	}
	defer retryStoreCleanup()

	retryService := syncretry.NewWebService(retryStore, queuer, publisher, subscriber, engine, nower)
	err = retryService.RegisterEndpoints(c, router)
	if err != nil {
		log.Fatalf("Error registering sync retry endpoints: %s", err)
	}

	warmupService := warmup.NewService(sessions)
	warmupService.RegisterEndpoints(c, router)

	startWebServerBlocking(router)
}

func createGateway() (gatewayapi.Gateway, error) {
	provider := os.Getenv("PAYMENT_PROVIDER")
	switch provider {
	case "adyen":
		return gatewayadyen.New(
			os.Getenv("ADYEN_API_KEY"),
			os.Getenv("ADYEN_MERCHANT_ACCOUNT"),
			os.Getenv("ADYEN_ENVIRONMENT"))
	case "mollie":
		return gatewaymollie.New(os.Getenv("MOLLIE_API_KEY"))
	case "", "stripe":
		return gatewaystripe.New(os.Getenv("STRIPE_API_KEY")), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %s", provider)
	}
}

func startWebServerBlocking(router *mux.Router) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting webserver on port %s (try http://localhost:%s)", port, port)
	err := http.ListenAndServe(fmt.Sprintf(":%s", port), router)
	if err != nil {
		log.Fatalf("Error starting webserver on port %s: %s", port, err)
	}
}
