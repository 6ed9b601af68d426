package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nextmcp/nextcloud-mcp-gateway/internal/config"
	"github.com/nextmcp/nextcloud-mcp-gateway/internal/controllers"
	"github.com/nextmcp/nextcloud-mcp-gateway/internal/database"
	"github.com/nextmcp/nextcloud-mcp-gateway/internal/gateway"
	"github.com/nextmcp/nextcloud-mcp-gateway/internal/middleware"
	"github.com/nextmcp/nextcloud-mcp-gateway/internal/models"
	"github.com/nextmcp/nextcloud-mcp-gateway/internal/nextcloud"
	"github.com/nextmcp/nextcloud-mcp-gateway/internal/oauth"
)

const version = "1.0.0"

var (
	configuration   *config.Config
	identity        *nextcloud.IdentityClient
	provider        *oauth.Provider
	mcpGateway      *gateway.Server
	oauthController *controllers.OAuthController
	loginController *controllers.LoginController
)

func main() {
	// Load environment variables
	loadDotenvFile()

	// Initialize logger
	setUpLogger()

	// Load configuration
	configuration = loadConfig()

	// Nextcloud is the delegated identity source for the login step and the
	// backend every MCP tool talks to
	identity = nextcloud.NewIdentityClient(configuration.NextcloudURL)

	// Initialize the OAuth provider and the MCP tool surface
	provider = setupProvider(configuration)
	mcpGateway = gateway.NewServer(identity, version)

	// Local clients speak MCP over stdin/stdout; no HTTP, no auth
	if config.GetEnvWithDefault("MCP_TRANSPORT", "http") == "stdio" {
		log.Info("Serving MCP over stdio")
		checkPanicErr(mcpGateway.ServeStdio())
		return
	}

	oauthController = controllers.NewOAuthController(provider, configuration.Auth.Issuer)
	loginController = controllers.NewLoginController(provider, identity)

	// Initialize Gin router
	var router *gin.Engine = setupRouter()

	// Start the server
	log.Infof("Starting server on %s:%d", configuration.Host, configuration.Port)
	router.Run(fmt.Sprintf("%v:%d", configuration.Host, configuration.Port))
}

// checkPanicErr checks if an error occurred and panics if it did
func checkPanicErr(err error) {
	if err != nil {
		panic(err)
	}
}

// loadDotenvFile loads environment variables from a .env file
// If the file is not found, it will log a warning and use system environment variables
func loadDotenvFile() {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, using system environment variables")
	}
}

// setUpLogger initializes the logger with a JSON formatter and sets the log level based on the environment
func setUpLogger() {
	log.SetFormatter(&log.JSONFormatter{})
	environment := config.GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(log.DebugLevel)
	case "production":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// loadConfig loads the application configuration from environment variables
// It returns a Config struct or panics if there is an error
func loadConfig() *config.Config {
	conf, err := config.LoadConfig()
	checkPanicErr(err)
	return conf
}

// setupProvider wires the OAuth provider: the client store (in-memory or
// database-backed), the code and refresh stores and the token codec.
func setupProvider(conf *config.Config) *oauth.Provider {
	clients := setupClientStore(conf)
	return oauth.NewProvider(clients, oauth.NewCodeStore(), oauth.NewRefreshStore(), oauth.NewTokenCodec(conf.Auth.Secret))
}

// setupClientStore selects the client store backing. With a database driver
// configured, registered clients survive restarts; otherwise they live in
// memory. Dynamic registration is a separate switch on top of either backing.
func setupClientStore(conf *config.Config) oauth.ClientStore {
	seed := seedClient(conf)

	if conf.ClientDB.Driver == "" {
		var seeds []*oauth.Client
		if seed != nil {
			seeds = append(seeds, seed)
		}
		if conf.Auth.RegistrationEnabled {
			log.Info("Using in-memory client registry with dynamic registration")
			return oauth.NewMemoryClientRegistry(seeds...)
		}
		log.Info("Using in-memory client store")
		return oauth.NewMemoryClientStore(seeds...)
	}

	db := setupDatabase(conf)
	store := oauth.NewGormClientStore(db)
	if seed != nil {
		checkPanicErr(store.SeedClient(context.Background(), seed))
	}
	if conf.Auth.RegistrationEnabled {
		log.Info("Using database client registry with dynamic registration")
		return oauth.NewGormClientRegistry(db)
	}
	log.Info("Using database client store")
	return store
}

// seedClient builds the operator-configured client, or nil when none is set.
// It carries no redirect URI restriction; the operator vouches for it.
func seedClient(conf *config.Config) *oauth.Client {
	if conf.Auth.ClientID == "" {
		return nil
	}
	client := &oauth.Client{
		ID:     conf.Auth.ClientID,
		Secret: conf.Auth.ClientSecret,
		Name:   "Operator-configured client",
	}
	if client.Secret == "" {
		client.TokenEndpointAuthMethod = "none"
	}
	return client
}

// setupDatabase opens the client registry database and migrates the schema
func setupDatabase(conf *config.Config) *gorm.DB {
	db, err := database.Connect(database.Config{
		Driver:   conf.ClientDB.Driver,
		Host:     conf.ClientDB.Host,
		Port:     conf.ClientDB.Port,
		User:     conf.ClientDB.User,
		Password: conf.ClientDB.Password,
		Name:     conf.ClientDB.Name,
		SSLMode:  conf.ClientDB.SSLMode,
		Path:     conf.ClientDB.Path,
	})
	checkPanicErr(err)
	// Migrate the schema
	checkPanicErr(db.AutoMigrate(&models.OAuthClient{}))
	return db
}

// setupRouter initializes the Gin router and sets up the routes
// It returns the configured router
func setupRouter() *gin.Engine {
	// Initialize Gin router
	router := gin.Default()

	// Define routes
	setupRoutes(router)

	return router
}

// setupRoutes defines the routes for the Gin router
func setupRoutes(router *gin.Engine) {
	// Health check endpoint
	router.GET("/health", healthCheckHandler)

	if configuration.Auth.Enabled {
		// Discovery documents (RFC 8414 and RFC 9728)
		router.GET("/.well-known/oauth-authorization-server", oauthController.Metadata)
		router.GET("/.well-known/oauth-protected-resource", oauthController.ProtectedResourceMetadata)

		// Authorization-code flow
		router.GET("/oauth/authorize", oauthController.Authorize)
		router.POST("/auth/login", loginController.Login)

		// Token lifecycle
		router.POST("/oauth/token", oauthController.Token)
		router.POST("/oauth/revoke", oauthController.Revoke)

		// Dynamic registration is mounted only when the store supports it
		if _, ok := provider.Clients().(oauth.ClientRegistrar); ok {
			router.POST("/oauth/register", oauthController.Register)
		}

		// MCP endpoint (requires a valid Bearer token)
		mcpApi := router.Group("/mcp")
		mcpApi.Use(middleware.OAuth2Auth(provider, configuration.Auth.Issuer))
		{
			mcpApi.Any("", gin.WrapH(mcpGateway.HTTPHandler()))
			mcpApi.Any("/*path", gin.WrapH(mcpGateway.HTTPHandler()))
		}
	} else {
		// Auth disabled: the MCP endpoint is open. Only safe behind a trusted
		// reverse proxy or on localhost
		log.Warn("MCP authorization is disabled, serving /mcp unauthenticated")
		router.Any("/mcp", gin.WrapH(mcpGateway.HTTPHandler()))
		router.Any("/mcp/*path", gin.WrapH(mcpGateway.HTTPHandler()))
	}
}

// healthCheckHandler handles the health check endpoint
func healthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "nextcloud-mcp-gateway",
	})
}
