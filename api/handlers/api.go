package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/api"
	"github.com/pawsaarthi/rescue-api/api/scheduler"
	"github.com/pawsaarthi/rescue-api/config"
	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/databases/memory"
	"github.com/pawsaarthi/rescue-api/ledger"
	"github.com/pawsaarthi/rescue-api/lifecycle"
	"github.com/pawsaarthi/rescue-api/media"
	"github.com/pawsaarthi/rescue-api/models"
	"github.com/pawsaarthi/rescue-api/notify"
	"github.com/pawsaarthi/rescue-api/payment"
	"github.com/pawsaarthi/rescue-api/visibility"
)

// App stores the router and the wired services, so they can be reused.
// Fields set before Setup are kept, which lets tests swap in fakes.
type App struct {
	Router *mux.Router
	Config config.Config
	Now    func() time.Time

	Store      databases.Store
	Ledger     *ledger.Ledger
	Engine     *lifecycle.Engine
	Views      *visibility.Service
	Payments   *payment.Service
	Intents    payment.IntentCreator
	Media      media.Uploader
	Hub        *notify.Hub
	Dispatcher *notify.Dispatcher
	Scheduler  *scheduler.Scheduler
	Auth       *api.MiddlewareDB

	client   databases.ClientHelper
	producer *notify.Producer
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	u := User{DB: a.Store.Users(), NDB: a.Store.Notifications(), Ledger: a.Ledger, Now: a.Now}
	rescue := Rescue{Engine: a.Engine, Ledger: a.Ledger, Views: a.Views, Media: a.Media}
	views := Views{Service: a.Views}
	pay := Payment{Service: a.Payments}
	admin := Admin{DB: a.Store.Users(), RDB: a.Store.Rescues(), Engine: a.Engine, Ledger: a.Ledger, Notifier: a.Dispatcher}
	ws := Notification{Hub: a.Hub, Auth: a.Auth}

	r := mux.NewRouter()
	r.Use(api.LoggingMiddleware)

	// healthchex
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	r.HandleFunc("/ws/notifications", ws.WebSocketHandler).Methods("GET")

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(a.Config.RequestTimeout))

	apiCreate.HandleFunc("/auth/register", u.RegisterHandler).Methods("POST")
	apiCreate.HandleFunc("/auth/token", a.Auth.CreateToken).Methods("POST")
	a.secure(apiCreate, "/auth/logout", a.Auth.RevokeToken).Methods("DELETE")
	apiCreate.HandleFunc("/payment/webhook", pay.WebhookHandler).Methods("POST")

	a.secure(apiCreate, "/user/profile", u.ProfileHandler).Methods("GET")
	a.secure(apiCreate, "/user/profile", u.UpdateProfileHandler).Methods("PUT")
	a.secure(apiCreate, "/user/wallet", u.WalletHandler, models.RoleCitizen).Methods("GET")
	a.secure(apiCreate, "/user/notifications", u.NotificationsHandler).Methods("GET")
	a.secure(apiCreate, "/user/notifications/{id}/read", u.MarkNotificationReadHandler).Methods("PUT")

	a.secure(apiCreate, "/rescue", rescue.CreateRescueHandler, models.RoleCitizen).Methods("POST")
	a.secure(apiCreate, "/rescue/mine", rescue.MyRescuesHandler, models.RoleCitizen).Methods("GET")
	a.secure(apiCreate, "/rescue/{id}", rescue.RescueByIDHandler).Methods("GET")
	a.secure(apiCreate, "/rescue/{id}/accept-ngo", rescue.AcceptRescueHandler, models.RoleOrg).Methods("PUT")
	a.secure(apiCreate, "/rescue/{id}/reject-ngo", rescue.RejectRescueHandler, models.RoleOrg).Methods("PUT")
	a.secure(apiCreate, "/rescue/{id}/assign-ambulance", rescue.AssignAmbulanceHandler, models.RoleFacility).Methods("PUT")
	a.secure(apiCreate, "/rescue/{id}/status", rescue.UpdateStatusHandler, models.RoleCarrier).Methods("PUT")

	a.secure(apiCreate, "/ngo/nearby", views.NearbyHandler, models.RoleOrg).Methods("GET")
	a.secure(apiCreate, "/ngo/my-cases", views.OrgCasesHandler, models.RoleOrg).Methods("GET")
	a.secure(apiCreate, "/hospital/escalated", views.EscalatedHandler, models.RoleFacility).Methods("GET")
	a.secure(apiCreate, "/hospital/ambulances", views.CarriersHandler, models.RoleFacility).Methods("GET")
	a.secure(apiCreate, "/hospital/my-cases", views.FacilityCasesHandler, models.RoleFacility).Methods("GET")
	a.secure(apiCreate, "/ambulance/assigned", views.AssignedHandler, models.RoleCarrier).Methods("GET")
	a.secure(apiCreate, "/ambulance/history", views.HistoryHandler, models.RoleCarrier).Methods("GET")

	a.secure(apiCreate, "/payment/create-order", pay.CreateOrderHandler, models.RoleCitizen).Methods("POST")

	a.secure(apiCreate, "/admin/pending-approvals", admin.PendingApprovalsHandler, models.RoleAdmin).Methods("GET")
	a.secure(apiCreate, "/admin/approve/{userId}", admin.ApproveUserHandler, models.RoleAdmin).Methods("PUT")
	a.secure(apiCreate, "/admin/rescue-requests", admin.RescuesHandler, models.RoleAdmin).Methods("GET")
	a.secure(apiCreate, "/admin/rescue/{id}/override", admin.OverrideHandler, models.RoleAdmin).Methods("PUT")
	a.secure(apiCreate, "/admin/rescue/{id}", admin.DeleteRescueHandler, models.RoleAdmin).Methods("DELETE")
	a.secure(apiCreate, "/admin/reconcile-refunds", admin.ReconcileRefundsHandler, models.RoleAdmin).Methods("POST")
	a.secure(apiCreate, "/admin/wallet/{userId}/verify", admin.VerifyWalletHandler, models.RoleAdmin).Methods("GET")

	return r
}

// secure registers an authenticated route, limited to roles when given
func (a *App) secure(r *mux.Router, path string, h http.HandlerFunc, roles ...models.Role) *mux.Route {
	var next http.Handler = h
	if len(roles) > 0 {
		next = api.RequireRole(roles...)(next)
	}
	return r.Handle(path, a.Auth.Middleware(next))
}

// Initialize is invoked by main to connect with the database, wire the
// services and create a router
func (a *App) Initialize() error {
	if a.Store == nil {
		if err := a.connect(); err != nil {
			return err
		}
	}
	return a.Setup()
}

func (a *App) connect() error {
	if a.Config.InMemory() {
		zap.S().Warn("DB_URI not set, using the in-memory store")
		a.Store = memory.New()
		return nil
	}

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	a.client = client
	db := databases.NewDatabase(&a.Config, client)
	if err := databases.EnsureIndexes(ctx, db); err != nil {
		zap.S().With(err).Error("failed to create indexes")
		return err
	}
	a.Store = databases.NewStore(db)
	zap.S().Info("rescue-api has connected to the database")
	return nil
}

// Setup builds every service over a.Store and the router
func (a *App) Setup() error {
	if a.Now == nil {
		a.Now = time.Now
	}
	if a.Hub == nil {
		a.Hub = notify.NewHub()
	}
	if a.Dispatcher == nil {
		a.Dispatcher = notify.NewDispatcher(a.Store, notify.Config{
			OrgRadiusKm:      a.Config.OrgRadiusKm,
			FacilityRadiusKm: a.Config.FacilityRadiusKm,
			Hub:              a.Hub,
			Mailer:           a.mailer(),
			Broker:           a.broker(),
			Now:              a.Now,
		})
	}
	if a.Ledger == nil {
		a.Ledger = ledger.New(a.Store, a.Now)
	}
	if a.Engine == nil {
		a.Engine = lifecycle.New(a.Store, a.Ledger, lifecycle.Config{
			Deposit:            a.Config.DepositAmount,
			EscalationDeadline: a.Config.EscalationDeadline,
			Now:                a.Now,
			Events:             a.Dispatcher,
		})
	}
	if a.Views == nil {
		a.Views = visibility.New(a.Store, visibility.Config{
			OrgRadiusKm:      a.Config.OrgRadiusKm,
			FacilityRadiusKm: a.Config.FacilityRadiusKm,
		})
	}
	if a.Payments == nil {
		a.Payments = payment.New(a.Ledger, payment.Config{
			SecretKey:     a.Config.StripeSecretKey,
			WebhookSecret: a.Config.StripeWebhookSecret,
			Currency:      a.Config.StripeCurrency,
			MinTopUp:      a.Config.MinTopUpAmount,
			Intents:       a.Intents,
			Notifier:      a.Dispatcher,
		})
	}
	if a.Media == nil {
		a.Media = a.uploader()
	}
	if a.Scheduler == nil {
		job := &scheduler.EscalationJob{
			Rescues:  a.Store.Rescues(),
			Engine:   a.Engine,
			Deadline: a.Engine.EscalationDeadline(),
		}
		a.Scheduler = scheduler.NewScheduler(job, a.Engine, a.Config.EscalationSchedule, a.Config.ReconcileSchedule)
	}
	if a.Auth == nil {
		a.Auth = &api.MiddlewareDB{
			DB:     a.Store.Users(),
			Secret: []byte(a.Config.JWTSecret),
			TTL:    a.Config.JWTTTL,
			Now:    a.Now,
		}
		a.Auth.SetupGoGuardian()
	}
	if a.Config.JWTSecret == "" {
		zap.S().Warn("JWT_SECRET is not set, bearer tokens cannot be issued")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := SeedAdmin(ctx, a.Store.Users(), a.Config.AdminEmail, a.Config.AdminPassword, a.Now()); err != nil {
		zap.S().With(err).Error("failed to seed admin account")
		return err
	}

	// initialize api router
	a.initializeRoutes()
	return nil
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

// Start runs the background workers
func (a *App) Start() {
	a.Dispatcher.Start()
	a.Scheduler.Start()
}

// Close stops the background workers and releases connections
func (a *App) Close() {
	a.Scheduler.Stop()
	a.Dispatcher.Stop()
	if a.producer != nil {
		a.producer.Close()
	}
	if a.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.client.Disconnect(ctx); err != nil {
			zap.S().Warnw("failed to disconnect from database", "error", err)
		}
	}
}

func (a *App) mailer() notify.Mailer {
	if a.Config.SendgridAPIKey == "" {
		zap.S().Info("SENDGRID_API_KEY not set, email notifications disabled")
		return nil
	}
	return notify.NewSendGrid(a.Config.SendgridAPIKey, a.Config.MailFrom, a.Config.AppURL)
}

func (a *App) broker() notify.Broker {
	if a.Config.AMQPURL == "" {
		return nil
	}
	p, err := notify.NewProducer(a.Config.AMQPURL)
	if err != nil {
		zap.S().Warnw("failed to connect to message broker, event publishing disabled", "error", err)
		return nil
	}
	a.producer = p
	return p
}

func (a *App) uploader() media.Uploader {
	if a.Config.CloudinaryURL == "" {
		zap.S().Warn("CLOUDINARY_URL not set, media uploads disabled")
		return media.Disabled{}
	}
	c, err := media.NewCloudinary(a.Config.CloudinaryURL, media.DefaultFolder)
	if err != nil {
		zap.S().Warnw("invalid CLOUDINARY_URL, media uploads disabled", "error", err)
		return media.Disabled{}
	}
	return c
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
