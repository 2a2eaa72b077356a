package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"authgate/internal/config"
	"authgate/internal/models"
	"authgate/internal/utils"
	"authgate/internal/utils/logger"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	var log = logger.New("helper")
	log.Info("🔑 Starting credentials helper CLI")

	err := godotenv.Load()
	if err != nil {
		log.Warn("⚠️ No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		_ = log.Error("❌ Failed to load configuration", err)
		return
	}

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("Enter 'h' to hash a password, 't' to mint a token, 'g' to generate a password, or 'q' to quit: ")
		choice, _ := reader.ReadString('\n')
		choice = strings.TrimSpace(choice)

		if choice == "q" {
			log.Info("👋 Exiting helper CLI")
			break
		}

		if choice == "g" {
			password, err := utils.GenerateRandomString(24)
			if err != nil {
				_ = log.Error("❌ Password generation failed", err)
			} else {
				log.Success("✅ Generated password: %s", password)
			}
			continue
		}

		fmt.Print("Enter the string to process: ")
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		if choice == "h" {
			hashed, err := bcrypt.GenerateFromPassword([]byte(input), bcrypt.DefaultCost)
			if err != nil {
				_ = log.Error("❌ Hashing failed", err)
			} else {
				log.Success("✅ Hashed password: %s", string(hashed))
			}
		} else if choice == "t" {
			// input is a user id; mint a claim-less debug token
			user := models.UserAccount{Base: models.Base{ID: input}}
			token, err := utils.GenerateJWT(user, nil, cfg.JWT.AccessTTL)
			if err != nil {
				_ = log.Error("❌ Token generation failed", err)
			} else {
				log.Success("✅ Token: %s", token)
			}
		} else {
			log.Warn("⚠️ Invalid choice. Please enter 'h', 't', 'g', or 'q'.")
		}
	}
}
