package app

import (
	"fmt"
	"os"

	"github.com/advisorop/advisorop-api/api"
	"github.com/advisorop/advisorop-api/config"
	"github.com/advisorop/advisorop-api/database"
	"github.com/advisorop/advisorop-api/router"
	"github.com/advisorop/advisorop-api/services"
	"github.com/advisorop/advisorop-api/services/cron"
	"gorm.io/gorm"
)

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	// Initialize GORM database connection
	store, err := database.StartGORM()
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		return err
	}

	if err := store.Init(); err != nil {
		print("Failed to initialize database tables\n")
		return err
	}

	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return fmt.Errorf("failed to get GORM DB instance")
	}

	// Seed the admin user and default AI profile
	if err := database.NewSeeder(db).SeedAll(); err != nil {
		print("Warning: Failed to seed initial data\n")
		print("Error: ", err.Error(), "\n")
	}

	// One retention policy for the whole process: the cron sweep and the
	// engine's turn-time/unarchive enforcement must share its per-owner
	// eviction locks.
	retention := services.NewRetentionPolicy(services.NewSessionStore(db), services.DefaultSessionCap)

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if os.Getenv("CRON_ENABLED") != "false" { // Default to enabled
		cronManager = cron.NewCronManager(db, retention)
		if err := cronManager.Start(); err != nil {
			print("Warning: Failed to start cron jobs\n")
			print("Error: ", err.Error(), "\n")
			// Don't fail the app, just log the warning
		}
	}

	// Defer Closing DB and stopping cron jobs
	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
		store.Close()
	}()

	// Init API
	var server *api.APIServer = api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	// Setup Routes
	router.SetupRoutes(app, store, retention)

	// Get the PORT & Start the Server
	return server.Run()
}
