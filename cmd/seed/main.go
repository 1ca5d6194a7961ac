// Command seed fills the database with demo students and swap requests.
package main

import (
	"flag"
	"log"

	"slotswap/internal/config"
	"slotswap/internal/database"
	"slotswap/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	students := flag.Int("students", defaults.Students, "Number of students to create")
	perStudent := flag.Int("requests", defaults.RequestsPerStudent, "Random swap requests per student")
	pairs := flag.Int("pairs", defaults.PairsPerCourse, "Guaranteed reciprocal pairs per course")
	clean := flag.Bool("clean", defaults.Clean, "Clean database before seeding")
	fakerSeed := flag.Int64("seed", 0, "Faker seed; 0 picks a random one")
	fast := flag.Bool("fast", false, "Hash the demo password at minimum bcrypt cost")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Printf("Target: %d students, %d requests each, %d pairs per course, clean=%v\n",
		*students, *perStudent, *pairs, *clean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	if err := database.ApplySchema(db, cfg); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	sum, err := seed.NewSeeder(db).Run(seed.Options{
		Students:           *students,
		RequestsPerStudent: *perStudent,
		PairsPerCourse:     *pairs,
		Clean:              *clean,
		Seed:               *fakerSeed,
		EmailDomain:        cfg.AllowedEmailDomain,
		FastHash:           *fast,
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✨ Created %d students and %d swap requests (%d reciprocal pairs)",
		sum.Students, sum.SwapRequests, sum.ReciprocalPairs)
	log.Printf("📧 All demo students have the password: %s", seed.DemoPassword)
}
