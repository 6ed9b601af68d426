package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type OAuthClient struct {
	ID                      string `gorm:"primaryKey"`
	SecretHash              string
	Name                    string
	RedirectURIs            string
	Scope                   string
	GrantTypes              string
	ResponseTypes           string
	TokenEndpointAuthMethod string
	SecretExpiresAt         int64
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (OAuthClient) TableName() string {
	return "oauth_clients"
}

func main() {
	// Parse command line flags
	dbPath := flag.String("db", "clients.sqlite", "Path to the client registry database")
	redirectURI := flag.String("redirect-uri", "http://localhost:8090/callback", "Redirect URI for the dev client")
	confidential := flag.Bool("confidential", false, "Create a confidential client with a secret")
	flag.Parse()

	db, err := gorm.Open(sqlite.Open(*dbPath), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := db.AutoMigrate(&OAuthClient{}); err != nil {
		log.Fatal("Failed to migrate schema:", err)
	}

	clientID := "dev-client"
	clientSecret := "dev-secret-123"

	// Check if client already exists
	var existing OAuthClient
	if err := db.Where("id = ?", clientID).First(&existing).Error; err == nil {
		fmt.Println("Development client already exists!")
		fmt.Printf("Client ID: %s\n", clientID)
		return
	}

	client := OAuthClient{
		ID:                      clientID,
		Name:                    "Development client",
		RedirectURIs:            *redirectURI,
		GrantTypes:              "authorization_code refresh_token",
		ResponseTypes:           "code",
		TokenEndpointAuthMethod: "none",
	}
	if *confidential {
		hash, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("Failed to hash secret:", err)
		}
		client.SecretHash = string(hash)
		client.TokenEndpointAuthMethod = "client_secret_post"
	}

	if err := db.Create(&client).Error; err != nil {
		log.Fatal("Failed to create client:", err)
	}

	fmt.Println("Development client created!")
	fmt.Printf("Client ID: %s\n", clientID)
	if *confidential {
		fmt.Printf("Client Secret: %s\n", clientSecret)
	}
	fmt.Printf("Redirect URI: %s\n", *redirectURI)
}
