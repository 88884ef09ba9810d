package main

import (
	"encoding/json"
	"flag"
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/idgen"
)

// SeedConfig holds seed configuration
type SeedConfig struct {
	Username string
	Password string
	DBPath   string
	Force    bool
	Samples  bool
}

// NewSeedConfig creates a new seed configuration
func NewSeedConfig() *SeedConfig {
	username := flag.String("username", "admin", "Admin username")
	password := flag.String("password", "adminpass", "Admin password")
	dbPath := flag.String("db", "plan-scraper.db", "Database path")
	force := flag.Bool("force", false, "Force recreation of admin user")
	samples := flag.Bool("samples", false, "Seed sample plans")

	flag.Parse()

	return &SeedConfig{
		Username: *username,
		Password: *password,
		DBPath:   *dbPath,
		Force:    *force,
		Samples:  *samples,
	}
}

func main() {
	config := NewSeedConfig()

	if config.Username == "" {
		log.Fatal("Username cannot be empty")
	}
	if len(config.Password) < 6 {
		log.Fatal("Password must be at least 6 characters long")
	}

	log.Println("Starting database seeding...")

	dbConn, err := db.InitDB(config.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Check if admin user already exists
	var existingUser db.User
	err = dbConn.Where("username = ?", config.Username).First(&existingUser).Error
	if err == nil {
		if !config.Force {
			log.Printf("Admin user '%s' already exists. Use -force flag to recreate.", config.Username)
		} else {
			log.Printf("Recreating admin user '%s'...", config.Username)
			if err := dbConn.Delete(&existingUser).Error; err != nil {
				log.Fatalf("Failed to delete existing user: %v", err)
			}
			createAdmin(dbConn, config)
		}
	} else if err == gorm.ErrRecordNotFound {
		createAdmin(dbConn, config)
	} else {
		log.Fatalf("Database error checking existing user: %v", err)
	}

	if config.Samples {
		seedSamplePlans(dbConn)
	}

	log.Println("Database seeding completed successfully")
}

func createAdmin(dbConn *gorm.DB, config *SeedConfig) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(config.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	adminUser := db.User{
		Username: config.Username,
		Password: string(hashedPassword),
	}
	if err := dbConn.Create(&adminUser).Error; err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}

	log.Printf("Successfully created admin user: %s", config.Username)
}

// seedSamplePlans inserts a few published plans so the monitor and
// duplicate endpoints have something to work with out of the box.
func seedSamplePlans(dbConn *gorm.DB) {
	samples := []db.Plan{
		{
			VendorName:    "欣葉台菜",
			Title:         "欣葉經典年菜六人套餐",
			PriceOriginal: 6980,
			PriceDiscount: 5980,
			ShippingFee:   200,
			ServingsMin:   6,
			ServingsMax:   8,
			SourceURL:     "https://example.com/hsinyeh/new-year-set",
		},
		{
			VendorName:    "福容大飯店",
			Title:         "紅燒蹄膀四人分享餐",
			PriceOriginal: 3280,
			PriceDiscount: 2880,
			ShippingFee:   180,
			ServingsMin:   4,
			ServingsMax:   6,
			SourceURL:     "https://example.com/fullon/braised-pork",
		},
	}

	for i := range samples {
		plan := &samples[i]
		var count int64
		dbConn.Model(&db.Plan{}).Where("source_url = ?", plan.SourceURL).Count(&count)
		if count > 0 {
			continue
		}
		plan.ID = idgen.New()
		plan.ShippingType = "delivery"
		plan.StorageType = "frozen"
		plan.Status = db.PlanPublished
		tags, _ := json.Marshal([]string{"年菜", "套餐"})
		plan.Tags = string(tags)
		if err := dbConn.Create(plan).Error; err != nil {
			log.Printf("Failed to seed plan %q: %v", plan.Title, err)
			continue
		}
		log.Printf("Seeded sample plan: %s", plan.Title)
	}
}
