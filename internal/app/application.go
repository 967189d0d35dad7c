package app

import (
	"context"
	"fmt"

	"github.com/LeadWire-CRM/automation_layer/internal/app/services/accounts"
	"github.com/LeadWire-CRM/automation_layer/internal/app/services/leads"
	messagingsvc "github.com/LeadWire-CRM/automation_layer/internal/app/services/messaging"
	"github.com/LeadWire-CRM/automation_layer/internal/app/services/tasks"
	"github.com/LeadWire-CRM/automation_layer/internal/app/services/workflows"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage/memory"
	"github.com/LeadWire-CRM/automation_layer/internal/app/system"
	"github.com/LeadWire-CRM/automation_layer/internal/config"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Accounts   storage.AccountStore
	Leads      storage.LeadStore
	Workflows  storage.WorkflowStore
	Executions storage.ExecutionStore
	ActionLogs storage.ActionLogStore
	Tasks      storage.TaskStore
}

// Options carries the runtime configuration the services need beyond their
// stores. The zero value runs everything in process with no external
// providers, which is what the tests use.
type Options struct {
	Messaging config.MessagingConfig
	Engine    config.EngineConfig
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Accounts  *accounts.Service
	Leads     *leads.Service
	Tasks     *tasks.Service
	Workflows *workflows.Service
	Messaging *messagingsvc.Service
	Engine    *workflows.Engine
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Accounts == nil {
		stores.Accounts = mem
	}
	if stores.Leads == nil {
		stores.Leads = mem
	}
	if stores.Workflows == nil {
		stores.Workflows = mem
	}
	if stores.Executions == nil {
		stores.Executions = mem
	}
	if stores.ActionLogs == nil {
		stores.ActionLogs = mem
	}
	if stores.Tasks == nil {
		stores.Tasks = mem
	}

	manager := system.NewManager()

	acctService := accounts.New(stores.Accounts, log)
	leadService := leads.New(stores.Accounts, stores.Leads, stores.ActionLogs, log)
	taskService := tasks.New(stores.Accounts, stores.Tasks, log)
	workflowService := workflows.New(stores.Accounts, stores.Workflows, stores.Executions, stores.ActionLogs, log)
	whatsapp, email, sms := buildProviders(opts.Messaging, log)
	messagingService := messagingsvc.New(whatsapp, email, sms, log)

	engine := workflows.NewEngine(workflows.EngineStores{
		Workflows:  stores.Workflows,
		Executions: stores.Executions,
		ActionLogs: stores.ActionLogs,
		Leads:      stores.Leads,
		Tasks:      stores.Tasks,
	}, log)
	if opts.Engine.ActionTimeoutSec > 0 {
		engine.WithActionTimeout(opts.Engine.ActionTimeout())
	}
	if baseURL := opts.Messaging.BaseURL; baseURL != "" {
		engine.WithSender(messagingsvc.NewLoopbackSender(baseURL, opts.Messaging.Token, log))
	} else {
		engine.WithSender(messagingService)
	}

	// Lead lifecycle events feed the engine synchronously.
	leadService.AttachAutomation(engine)

	for _, name := range []string{"accounts", "leads", "tasks", "workflows"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	scheduler := workflows.NewScheduler(engine, opts.Engine.SchedulerInterval(), log)
	if err := manager.Register(scheduler); err != nil {
		return nil, fmt.Errorf("register %s: %w", scheduler.Name(), err)
	}

	return &Application{
		manager:   manager,
		log:       log,
		Accounts:  acctService,
		Leads:     leadService,
		Tasks:     taskService,
		Workflows: workflowService,
		Messaging: messagingService,
		Engine:    engine,
	}, nil
}

// buildProviders constructs the channel clients that have credentials
// configured. Missing credentials leave the channel disabled with a warning;
// sends on it then fail as ordinary action failures.
func buildProviders(cfg config.MessagingConfig, log *logger.Logger) (whatsapp, email, sms messagingsvc.Provider) {
	if cfg.WhatsAppToken != "" && cfg.WhatsAppPhoneID != "" {
		whatsapp = messagingsvc.NewWhatsAppClient(cfg.WhatsAppBaseURL, cfg.WhatsAppToken, cfg.WhatsAppPhoneID, cfg.WhatsAppIDPath, log)
	} else {
		log.Warn("WHATSAPP_TOKEN/WHATSAPP_PHONE_ID not set; whatsapp channel disabled")
	}
	if cfg.BrevoAPIKey != "" && cfg.BrevoSender != "" {
		email = messagingsvc.NewBrevoClient(cfg.BrevoBaseURL, cfg.BrevoAPIKey, cfg.BrevoSender, log)
	} else {
		log.Warn("BREVO_API_KEY/BREVO_SENDER_EMAIL not set; email channel disabled")
	}
	if cfg.TwilioSID != "" && cfg.TwilioToken != "" && cfg.TwilioFrom != "" {
		sms = messagingsvc.NewTwilioClient(cfg.TwilioBaseURL, cfg.TwilioSID, cfg.TwilioToken, cfg.TwilioFrom, log)
	} else {
		log.Warn("TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN not set; sms channel disabled")
	}
	return whatsapp, email, sms
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
