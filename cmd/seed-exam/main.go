package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// dsaQuestions is the demo paper: six data-structures questions.
var dsaQuestions = []model.CreateQuestionRequest{
	{Text: "What is the time complexity of binary search?",
		Options: []string{"O(n)", "O(log n)", "O(n²)", "O(1)"}, CorrectAnswer: "O(log n)"},
	{Text: "Which data structure uses LIFO principle?",
		Options: []string{"Queue", "Stack", "Array", "Linked List"}, CorrectAnswer: "Stack"},
	{Text: "What is the worst-case time complexity of QuickSort?",
		Options: []string{"O(n log n)", "O(n²)", "O(n)", "O(log n)"}, CorrectAnswer: "O(n²)"},
	{Text: "What is a hash collision?",
		Options: []string{
			"When two keys hash to the same value",
			"When hash table is full",
			"When memory is corrupted",
			"When function is undefined",
		}, CorrectAnswer: "When two keys hash to the same value"},
	{Text: "Which sorting algorithm has the best average-case time complexity?",
		Options: []string{"Bubble Sort", "Merge Sort", "Selection Sort", "Insertion Sort"}, CorrectAnswer: "Merge Sort"},
	{Text: "What is the space complexity of merge sort?",
		Options: []string{"O(1)", "O(log n)", "O(n)", "O(n²)"}, CorrectAnswer: "O(n)"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	identities := repository.NewIdentityRepository(pool)
	examService := service.NewExamService(
		repository.NewExamRepository(pool),
		repository.NewQuestionRepository(pool),
		rdb,
		proctor.Settings{MaxWarnings: cfg.MaxWarnings, Duration: cfg.ExamDuration},
		log,
	)

	fmt.Println("=== Seeding demo exam ===")

	examiner, err := identities.GetExaminerByEmail(ctx, "examiner@exstem.local")
	if errors.Is(err, pgx.ErrNoRows) {
		examiner = &model.Examiner{FullName: "Demo Examiner", Email: "examiner@exstem.local"}
		err = identities.CreateExaminer(ctx, examiner)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create examiner")
	}

	students := []string{"Budi Santoso", "Siti Aminah", "Andi Pratama"}
	for i, name := range students {
		s := &model.Student{FullName: name, Email: fmt.Sprintf("student%d@exstem.local", i+1)}
		switch err := identities.CreateStudent(ctx, s); {
		case errors.Is(err, repository.ErrDuplicateEmail):
			fmt.Printf("Student %s already exists\n", s.Email)
		case err != nil:
			log.Fatal().Err(err).Str("email", s.Email).Msg("Failed to create student")
		default:
			fmt.Printf("Created student %s (%s)\n", s.Email, s.ID)
		}
	}

	exam, err := examService.Create(ctx, examiner.ID, model.CreateExamRequest{
		Title:       "Data Structures and Algorithms",
		Description: "Proctored multiple-choice quiz.",
		Questions:   dsaQuestions,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}

	fmt.Printf("\nSeed completed! Exam %q (%s) with %d questions, examiner %s.\n",
		exam.Title, exam.ID, len(dsaQuestions), examiner.ID)
}
