package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"negrostrees/libs/healthdist"
	"negrostrees/libs/mailer"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	maxUploadBytes             = 10 * 1024 * 1024
	maxImportBytes             = 20 * 1024 * 1024
	submissionRateLimitWindow  = 10 * time.Minute
	rateLimiterCleanupInterval = time.Minute
	userCookieName             = "negrostrees_session"
	userSessionDuration        = 12 * time.Hour
	csrfCookieName             = "csrftoken"
	csrfHeaderName             = "X-CSRFToken"
	csrfCookieMaxAge           = 365 * 24 * time.Hour
	treesDefaultPageSize       = 25
	reportTableRowLimit        = 10
	analyticsTopN              = 10
	devCORSOriginLocalhost     = "http://localhost:5173"
	devCORSOriginLoopback      = "http://127.0.0.1:5173"
	trustedProxyLoopbackIPv4   = "127.0.0.1"
	trustedProxyLoopbackIPv6   = "::1"
)

const (
	roleAppUser    = "app_user"
	roleHeadUser   = "head_user"
	rolePublicUser = "public_user"
)

var (
	userRoles          = []string{roleAppUser, roleHeadUser, rolePublicUser}
	layerTypes         = []string{"topographic", "satellite", "street", "heatmap", "protected", "landuse", "soil", "custom"}
	themes             = []string{"dark", "light", "nature"}
	mapStyles          = []string{"dark", "normal", "light", "satellite", "topographic"}
	germinationOptions = []string{"not_germinated", "germinating", "partially_germinated", "fully_germinated", "failed"}
)

type Config struct {
	Addr                  string
	Env                   string
	DatabaseURL           string
	PublicBaseURL         string
	AppSigningSecret      string
	BootstrapAdminEmail   string
	BootstrapAdminPass    string
	ResendAPIKey          string
	MailerFromAddresses   map[string]string
	SubmissionNotifyTo    []string
	StagingURL            string
	StagingAPIKey         string
	StagingTable          string
	MapboxAccessToken     string
	GeocoderProvider      string
	MapViewTTL            time.Duration
	SubmissionRateLimit   int
	DatabaseConnectTries  int
	DatabaseConnectWindow time.Duration
}

type App struct {
	cfg *Config
	db  *sql.DB
	log *slog.Logger

	geocoder Geocoder
	mailer   *mailer.Mailer
	staging  StagingClient
	metrics  *apiMetrics
	mapViews *mapViewStore

	rateLimiterMu sync.Mutex
	rateBuckets   map[string]rateBucket

	// store hooks, replaced with stubs in tests
	authenticateUser func(ctx context.Context, email, password string) (string, error)

	treeList          func(ctx context.Context, filters map[string]any) ([]TreeRecord, error)
	treeListPaginated func(ctx context.Context, filters map[string]any, page, pageSize int) (*PaginatedTrees, error)
	treeGet           func(ctx context.Context, id string) (*TreeRecord, error)
	treeCreate        func(ctx context.Context, input TreeInput) (*TreeRecord, error)
	treeUpdate        func(ctx context.Context, id string, input TreeUpdate) (*TreeRecord, error)
	treeDelete        func(ctx context.Context, ids []string) (int, error)
	treeDeleteAll     func(ctx context.Context) (int, error)

	seedList      func(ctx context.Context, filters map[string]any) ([]SeedRecord, error)
	seedCreate    func(ctx context.Context, input SeedInput) (*SeedRecord, error)
	seedUpdate    func(ctx context.Context, id string, input SeedUpdate) (*SeedRecord, error)
	seedDelete    func(ctx context.Context, ids []string) (int, error)
	seedDeleteAll func(ctx context.Context) (int, error)

	layerList   func(ctx context.Context) ([]MapLayer, error)
	layerGet    func(ctx context.Context, id int) (*MapLayer, error)
	layerCreate func(ctx context.Context, layer MapLayer) (*MapLayer, error)
	layerUpdate func(ctx context.Context, id int, layer MapLayer) (*MapLayer, error)
	layerDelete func(ctx context.Context, id int) error

	speciesList  func(ctx context.Context) ([]Species, error)
	locationList func(ctx context.Context) ([]Location, error)

	settingsAll        func(ctx context.Context) (map[string]string, error)
	settingSave        func(ctx context.Context, key, value string) error
	pinStyleDefault    func(ctx context.Context) (*PinStyle, error)
	pinStyleSetDefault func(ctx context.Context, name string) (*PinStyle, error)

	submissionCreate func(ctx context.Context, input SubmissionInput) (*Submission, error)
	submissionList   func(ctx context.Context) ([]Submission, error)
	submissionImage  func(ctx context.Context, id int) ([]byte, string, error)

	userListPaginated func(ctx context.Context, filters map[string]any, page, pageSize int) (*PaginatedUsers, error)
	userGet           func(ctx context.Context, id int) (*User, error)
	userCreate        func(ctx context.Context, input UserInput) (*User, error)
	userUpdate        func(ctx context.Context, id int, update UserUpdate) (*User, error)
	userDelete        func(ctx context.Context, id int) error
	userBulkStatus    func(ctx context.Context, ids []int, isActive bool) (int, error)
}

type rateBucket struct {
	start time.Time
	count int
}

type UserSession struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type TreeRecord struct {
	ID             string   `json:"id"`
	SpeciesID      int      `json:"species_id"`
	CommonName     string   `json:"common_name"`
	ScientificName string   `json:"scientific_name"`
	Family         string   `json:"family"`
	Genus          string   `json:"genus"`
	LocationID     int      `json:"location_id"`
	LocationName   string   `json:"location"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	Municipality   *string  `json:"municipality,omitempty"`
	Population     int      `json:"population"`
	Year           int      `json:"year"`
	HealthStatus   string   `json:"health_status"`
	Hectares       *float64 `json:"hectares,omitempty"`
	Notes          string   `json:"notes"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
	healthdist.Counts
}

type TreeInput struct {
	CommonName     string
	ScientificName string
	Family         string
	Genus          string
	Latitude       float64
	Longitude      float64
	LocationName   string
	Population     int
	Year           int
	HealthStatus   string
	Counts         healthdist.Counts
	Hectares       *float64
	Notes          string
}

type TreeUpdate struct {
	SpeciesID    int
	Population   int
	Year         int
	HealthStatus string
	Latitude     float64
	Longitude    float64
	Notes        string
	Counts       *healthdist.Counts
}

type PaginatedTrees struct {
	Trees      []TreeRecord `json:"trees"`
	TotalCount int          `json:"total_count"`
}

type SeedRecord struct {
	ID                   string   `json:"id"`
	SpeciesID            int      `json:"species_id"`
	CommonName           string   `json:"common_name"`
	ScientificName       string   `json:"scientific_name"`
	Family               string   `json:"family"`
	Genus                string   `json:"genus"`
	LocationID           int      `json:"location_id"`
	LocationName         string   `json:"location"`
	Latitude             float64  `json:"latitude"`
	Longitude            float64  `json:"longitude"`
	Quantity             int      `json:"quantity"`
	PlantingDate         string   `json:"planting_date"`
	GerminationStatus    string   `json:"germination_status"`
	GerminationDate      *string  `json:"germination_date"`
	SurvivalRate         *float64 `json:"survival_rate"`
	ExpectedMaturityDate *string  `json:"expected_maturity_date"`
	Hectares             *float64 `json:"hectares,omitempty"`
	Notes                string   `json:"notes"`
	CreatedAt            string   `json:"created_at"`
}

type SeedInput struct {
	CommonName           string
	ScientificName       string
	Family               string
	Genus                string
	Latitude             float64
	Longitude            float64
	LocationName         string
	Quantity             int
	PlantingDate         string
	GerminationStatus    string
	GerminationDate      *string
	SurvivalRate         *float64
	ExpectedMaturityDate *string
	Hectares             *float64
	Notes                string
}

type SeedUpdate struct {
	SpeciesID            int
	Quantity             int
	PlantingDate         string
	GerminationStatus    string
	GerminationDate      *string
	SurvivalRate         *float64
	ExpectedMaturityDate *string
	Latitude             float64
	Longitude            float64
	Notes                string
}

type MapLayer struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	LayerType   string `json:"layer_type"`
	IsActive    bool   `json:"is_active"`
	IsDefault   bool   `json:"is_default"`
	Attribution string `json:"attribution"`
	ZIndex      int    `json:"z_index"`
	CreatedAt   string `json:"created_at"`
}

type PinStyle struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	IconClass       string `json:"icon_class"`
	Color           string `json:"color"`
	Size            int    `json:"size"`
	BorderColor     string `json:"border_color"`
	BorderWidth     int    `json:"border_width"`
	BackgroundColor string `json:"background_color"`
	IsDefault       bool   `json:"is_default"`
}

type Species struct {
	ID                 int    `json:"id"`
	CommonName         string `json:"common_name"`
	ScientificName     string `json:"scientific_name"`
	Family             string `json:"family"`
	Genus              string `json:"genus"`
	IsEndemic          bool   `json:"is_endemic"`
	ConservationStatus string `json:"conservation_status"`
}

type Location struct {
	ID           int      `json:"id"`
	Name         string   `json:"name"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Elevation    *float64 `json:"elevation"`
	Municipality *string  `json:"municipality"`
}

type SubmissionInput struct {
	Description string
	Latitude    float64
	Longitude   float64
	PersonName  string
	Image       []byte
	ImageFormat string
}

type Submission struct {
	ID          int     `json:"id"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	PersonName  string  `json:"person_name"`
	ImageFormat string  `json:"image_format"`
	ImageURL    string  `json:"image_url"`
	CreatedAt   string  `json:"created_at"`
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := pingDatabase(ctx, db, cfg, logger); err != nil {
		panic(err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	mapbox := &MapboxGeocoder{AccessToken: cfg.MapboxAccessToken, Client: httpClient}
	nominatim := &NominatimGeocoder{UserAgent: "NegrosTrees-API/1.0", Client: httpClient}

	var geocoder Geocoder
	switch cfg.GeocoderProvider {
	case "mapbox":
		geocoder = mapbox
	case "nominatim":
		geocoder = nominatim
	default:
		geocoder = &FallbackGeocoder{Primary: mapbox, Secondary: nominatim}
	}

	var mailProvider mailer.Provider
	if cfg.ResendAPIKey != "" {
		mailProvider = mailer.NewResendProvider(cfg.ResendAPIKey)
	} else {
		mailProvider = mailer.NewLogProvider(logger)
	}
	logger.Info("mailer initialized", "provider", mailProvider.Name())

	app := &App{
		cfg:         cfg,
		db:          db,
		log:         logger,
		geocoder:    geocoder,
		mailer:      mailer.New(mailProvider, cfg.MailerFromAddresses[mailProvider.Name()]),
		metrics:     newAPIMetrics(prometheus.NewRegistry()),
		mapViews:    newMapViewStore(),
		rateBuckets: make(map[string]rateBucket),
	}
	if cfg.StagingURL != "" {
		app.staging = NewSupabaseClient(cfg.StagingURL, cfg.StagingAPIKey, cfg.StagingTable, httpClient)
	}
	app.wireStores()

	logger.Info(
		"runtime configuration",
		"env", cfg.Env,
		"addr", cfg.Addr,
		"geocoder", cfg.GeocoderProvider,
		"staging_configured", app.staging != nil,
		"map_view_ttl", cfg.MapViewTTL.String(),
	)

	if err := app.runMigrations(ctx); err != nil {
		panic(err)
	}

	if len(os.Args) > 1 {
		if err := app.runCommand(ctx, os.Args[1], os.Args[2:]); err != nil {
			logger.Error("command failed", "command", os.Args[1], "err", err)
			os.Exit(1)
		}
		return
	}

	if err := app.bootstrapAdmin(ctx); err != nil {
		panic(err)
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	app.startStateCleanup(cleanupCtx, rateLimiterCleanupInterval)

	r := app.newRouter()
	if err := r.SetTrustedProxies([]string{trustedProxyLoopbackIPv4, trustedProxyLoopbackIPv6}); err != nil {
		panic(err)
	}

	app.log.Info("starting gin API", "addr", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		panic(err)
	}
}

func (a *App) wireStores() {
	a.authenticateUser = a.storeAuthenticateUser

	a.treeList = a.storeListTrees
	a.treeListPaginated = a.storeListTreesPaginated
	a.treeGet = a.storeGetTree
	a.treeCreate = a.storeCreateTree
	a.treeUpdate = a.storeUpdateTree
	a.treeDelete = a.storeDeleteTrees
	a.treeDeleteAll = a.storeDeleteAllTrees

	a.seedList = a.storeListSeeds
	a.seedCreate = a.storeCreateSeed
	a.seedUpdate = a.storeUpdateSeed
	a.seedDelete = a.storeDeleteSeeds
	a.seedDeleteAll = a.storeDeleteAllSeeds

	a.layerList = a.storeListLayers
	a.layerGet = a.storeGetLayer
	a.layerCreate = a.storeCreateLayer
	a.layerUpdate = a.storeUpdateLayer
	a.layerDelete = a.storeDeleteLayer

	a.speciesList = a.storeListSpecies
	a.locationList = a.storeListLocations

	a.settingsAll = a.storeAllSettings
	a.settingSave = a.storeSaveSetting
	a.pinStyleDefault = a.storeDefaultPinStyle
	a.pinStyleSetDefault = a.storeSetDefaultPinStyle

	a.submissionCreate = a.storeCreateSubmission
	a.submissionList = a.storeListSubmissions
	a.submissionImage = a.storeSubmissionImage

	a.userListPaginated = a.storeListUsersPaginated
	a.userGet = a.storeGetUser
	a.userCreate = a.storeCreateUser
	a.userUpdate = a.storeUpdateUser
	a.userDelete = a.storeDeleteUser
	a.userBulkStatus = a.storeBulkUpdateUserStatus
}

func (a *App) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(a.loggingMiddleware())
	r.Use(a.metricsMiddleware())
	r.Use(a.corsMiddleware())
	r.Use(a.csrfMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if a.metrics != nil {
		r.GET("/metrics", gin.WrapH(a.metrics.handler))
	}

	session := a.requireUserSession()
	appUser := a.requireRole(roleAppUser)

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.GET("/csrf", a.csrfHandler)
			auth.POST("/login", a.loginHandler)
			auth.POST("/logout", a.logoutHandler)
			auth.GET("/session", a.sessionHandler)
		}

		api.GET("/tree-data", a.treeDataHandler)
		api.GET("/seed-data", a.seedDataHandler)
		api.GET("/filter-trees/:species_id", a.filterTreesHandler)
		api.GET("/analytics-data", a.analyticsDataHandler)
		api.GET("/layers", a.listLayersHandler)
		api.GET("/base-layers", a.baseLayersHandler)
		api.POST("/validate/health", a.validateHealthHandler)
		api.POST("/validate/fields", a.validateFieldsHandler)
		api.POST("/submissions", a.createSubmissionHandler)

		api.GET("/layers/:id", session, a.getLayerHandler)
		api.GET("/species-list", session, a.speciesListHandler)
		api.GET("/locations-list", session, a.locationsListHandler)
		api.GET("/trees", session, a.listTreesHandler)
		api.GET("/export/trees/:format", session, a.exportTreesHandler)
		api.GET("/submissions", session, a.listSubmissionsHandler)
		api.GET("/submissions/:id/image", session, a.submissionImageHandler)

		views := api.Group("/map/views", session)
		{
			views.POST("", a.mountMapViewHandler)
			views.GET("/:id", a.mapViewStateHandler)
			views.POST("/:id/render", a.renderMapViewHandler)
			views.POST("/:id/layers", a.toggleMapLayerHandler)
			views.POST("/:id/base", a.switchBaseLayerHandler)
			views.DELETE("/:id", a.unmountMapViewHandler)
		}

		api.POST("/layers", session, appUser, a.createLayerHandler)
		api.PUT("/layers/:id", session, appUser, a.updateLayerHandler)
		api.DELETE("/layers/:id", session, appUser, a.deleteLayerHandler)
		api.POST("/trees", session, appUser, a.createTreeHandler)
		api.POST("/seeds", session, appUser, a.createSeedHandler)

		api.GET("/supabase-data", session, appUser, a.listStagingHandler)
		api.POST("/supabase-data", session, appUser, a.importStagingHandler)
		api.DELETE("/supabase-data", session, appUser, a.deleteStagingHandler)

		settings := api.Group("/settings", session, appUser)
		{
			settings.GET("", a.settingsHandler)
			settings.POST("/theme", a.saveThemeHandler)
			settings.POST("/map-style", a.saveMapStyleHandler)
			settings.POST("/pin-style", a.savePinStyleHandler)
			settings.POST("/save", a.saveSettingHandler)
		}

		users := api.Group("/users", session, appUser)
		{
			users.GET("", a.listUsersHandler)
			users.POST("", a.createUserHandler)
			users.POST("/bulk-status", a.bulkUserStatusHandler)
			users.PUT("/:id", a.updateUserHandler)
			users.DELETE("/:id", a.deleteUserHandler)
		}
	}

	r.POST("/generate-report", session, a.generateReportHandler)

	editor := r.Group("", session, appUser)
	{
		editor.POST("/edit-tree/:id", a.editTreeHandler)
		editor.POST("/delete-tree/:id", a.deleteTreeHandler)
		editor.POST("/delete-trees-bulk", a.deleteTreesBulkHandler)
		editor.POST("/delete-all-trees", a.deleteAllTreesHandler)
		editor.POST("/edit-seed/:id", a.editSeedHandler)
		editor.POST("/delete-seed/:id", a.deleteSeedHandler)
		editor.POST("/delete-seeds-bulk", a.deleteSeedsBulkHandler)
		editor.POST("/delete-all-seeds", a.deleteAllSeedsHandler)
		editor.POST("/upload", a.uploadHandler)
	}

	return r
}

func loadConfig() (*Config, error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		host := valueFromEnvKeys("PGHOST", "POSTGRES_HOST")
		if host == "" {
			host = "127.0.0.1"
		}
		port := valueFromEnvKeys("PGPORT", "POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		dbname := valueFromEnvKeys("PGDATABASE", "POSTGRES_DB")
		user := valueFromEnvKeys("PGUSER", "POSTGRES_USER")
		password := valueFromEnvKeys("PGPASSWORD", "POSTGRES_PASSWORD")
		sslmode := valueFromEnvKeys("PGSSLMODE", "POSTGRES_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}
		if dbname != "" && user != "" {
			databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, dbname, sslmode)
		}
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or PG*/POSTGRES_* variables must be configured")
	}

	secret := strings.TrimSpace(os.Getenv("APP_SIGNING_SECRET"))
	if len(secret) < 16 {
		return nil, fmt.Errorf("APP_SIGNING_SECRET must be at least 16 characters")
	}

	publicBase := strings.TrimRight(valueOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/")

	cfg := &Config{
		Addr:                  valueOrDefault("GIN_ADDR", ":8080"),
		Env:                   valueOrDefault("APP_ENV", "development"),
		DatabaseURL:           databaseURL,
		PublicBaseURL:         publicBase,
		AppSigningSecret:      secret,
		BootstrapAdminEmail:   strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_EMAIL")),
		BootstrapAdminPass:    strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")),
		ResendAPIKey:          strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		SubmissionNotifyTo:    mailer.SplitRecipients(os.Getenv("SUBMISSION_NOTIFY_TO")),
		StagingURL:            strings.TrimRight(strings.TrimSpace(os.Getenv("STAGING_URL")), "/"),
		StagingAPIKey:         strings.TrimSpace(os.Getenv("STAGING_API_KEY")),
		StagingTable:          valueOrDefault("STAGING_TABLE", "tree_sightings"),
		MapboxAccessToken:     strings.TrimSpace(os.Getenv("MAPBOX_ACCESS_TOKEN")),
		GeocoderProvider:      strings.TrimSpace(os.Getenv("GEOCODER_PROVIDER")),
		MapViewTTL:            30 * time.Minute,
		SubmissionRateLimit:   5,
		DatabaseConnectTries:  5,
		DatabaseConnectWindow: 30 * time.Second,
		MailerFromAddresses: map[string]string{
			"resend": valueOrDefault("MAILER_FROM_ADDRESS_RESEND", "noreply@negrostrees.org"),
			"log":    valueOrDefault("MAILER_FROM_ADDRESS_LOG", "noreply@negrostrees.local"),
		},
	}

	if cfg.StagingURL != "" && cfg.StagingAPIKey == "" {
		return nil, fmt.Errorf("STAGING_API_KEY is required when STAGING_URL is set")
	}

	if raw := strings.TrimSpace(os.Getenv("MAP_VIEW_TTL_MINUTES")); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("MAP_VIEW_TTL_MINUTES must be a positive integer")
		}
		cfg.MapViewTTL = time.Duration(minutes) * time.Minute
	}

	if raw := strings.TrimSpace(os.Getenv("SUBMISSION_RATE_LIMIT")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("SUBMISSION_RATE_LIMIT must be a positive integer")
		}
		cfg.SubmissionRateLimit = limit
	}

	switch cfg.GeocoderProvider {
	case "", "mapbox", "nominatim", "fallback":
	default:
		return nil, fmt.Errorf("GEOCODER_PROVIDER must be one of mapbox, nominatim, fallback")
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func valueFromEnvKeys(keys ...string) string {
	for _, key := range keys {
		value := strings.TrimSpace(os.Getenv(key))
		if value != "" {
			return value
		}
	}
	return ""
}

// pingDatabase retries the first connection so the API can start alongside
// its database container.
func pingDatabase(ctx context.Context, db *sql.DB, cfg *Config, logger *slog.Logger) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.DatabaseConnectWindow
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Warn("database not ready", "attempt", attempt, "err", err)
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(cfg.DatabaseConnectTries-1)), ctx))
}

func (a *App) runMigrations(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return err
	}

	if _, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		var exists bool
		if err := a.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, file).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}

		content, err := migrationFiles.ReadFile(filepath.ToSlash(filepath.Join("migrations", file)))
		if err != nil {
			return err
		}

		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, file); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		a.log.Info("applied migration", "file", file)
	}

	return nil
}

func (a *App) bootstrapAdmin(ctx context.Context) error {
	email := a.cfg.BootstrapAdminEmail
	password := a.cfg.BootstrapAdminPass
	if email == "" || password == "" {
		a.log.Info("bootstrap admin not configured")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, role, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (email)
		DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			is_active = TRUE,
			updated_at = NOW()
	`, strings.ToLower(email), string(hash), roleAppUser)
	if err != nil {
		return err
	}

	a.log.Info("bootstrap admin ensured", "email", email, "role", roleAppUser)
	return nil
}

func (a *App) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func (a *App) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if a.isAllowedCORSOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+csrfHeaderName)
			c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *App) isAllowedCORSOrigin(origin string) bool {
	if origin == "" || a.cfg == nil {
		return false
	}
	if a.cfg.PublicBaseURL != "" && origin == a.cfg.PublicBaseURL {
		return true
	}
	if !strings.EqualFold(a.cfg.Env, "development") {
		return false
	}
	return origin == devCORSOriginLocalhost || origin == devCORSOriginLoopback
}

func writeAPIError(c *gin.Context, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"success": false, "error": apiErr.Message, "code": apiErr.Code})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error(), "code": "internal_error"})
}

func badRequest(code, message string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: code, Message: message}
}

func notFound(code, message string) *apiError {
	return &apiError{Status: http.StatusNotFound, Code: code, Message: message}
}
