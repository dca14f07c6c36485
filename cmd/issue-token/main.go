package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/service"
)

func main() {
	role := flag.String("role", "", "student or examiner")
	email := flag.String("email", "", "account email")
	name := flag.String("name", "", "full name, used when the account is created")
	askSecret := flag.Bool("ask-secret", false, "prompt for the signing secret instead of using JWT_SECRET")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	identities := repository.NewIdentityRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)
	prompt := func(label, current string) string {
		if current != "" {
			return current
		}
		fmt.Print(label)
		v, _ := reader.ReadString('\n')
		return strings.TrimSpace(v)
	}

	r := model.Role(prompt("Role (student/examiner): ", *role))
	if r != model.RoleStudent && r != model.RoleExaminer {
		fmt.Println("Error: role must be student or examiner")
		os.Exit(1)
	}
	addr := prompt("Email: ", *email)
	if addr == "" {
		fmt.Println("Error: email is required")
		os.Exit(1)
	}

	if *askSecret {
		fmt.Print("Signing secret: ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil || len(secret) == 0 {
			fmt.Println("Error reading secret")
			os.Exit(1)
		}
		cfg.JWTSecret = string(secret)
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	var userID uuid.UUID
	switch r {
	case model.RoleStudent:
		s, err := identities.GetStudentByEmail(ctx, addr)
		if errors.Is(err, pgx.ErrNoRows) {
			s = &model.Student{FullName: prompt("Full name: ", *name), Email: addr}
			err = identities.CreateStudent(ctx, s)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to resolve student")
		}
		userID = s.ID
	case model.RoleExaminer:
		e, err := identities.GetExaminerByEmail(ctx, addr)
		if errors.Is(err, pgx.ErrNoRows) {
			e = &model.Examiner{FullName: prompt("Full name: ", *name), Email: addr}
			err = identities.CreateExaminer(ctx, e)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to resolve examiner")
		}
		userID = e.ID
	}

	token, err := service.NewAuthService(cfg).GenerateToken(r, userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	fmt.Printf("%s %s (%s)\n%s\n", r, addr, userID, token)
}
