package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/database"
	"github.com/stemsi/exstem-attempts/internal/logger"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/repository"
	"github.com/stemsi/exstem-attempts/internal/service"
)

type seedQuestion struct {
	text       string
	typ        model.QuestionType
	difficulty model.Difficulty
	correct    string
	openText   *model.OpenTextConfig
}

var questions = []seedQuestion{
	{"Protokol yang bekerja pada port 22 adalah?", model.QuestionTypeMultipleChoice, model.DifficultyBeginner, "B", nil},
	{"Perangkat yang bekerja pada layer 3 OSI adalah?", model.QuestionTypeMultipleChoice, model.DifficultyBeginner, "C", nil},
	{"IPv4 memiliki panjang 32 bit.", model.QuestionTypeTrueFalse, model.DifficultyBeginner, "TRUE", nil},
	{"Subnet mask /26 menyediakan berapa host yang dapat dipakai?", model.QuestionTypeMultipleChoice, model.DifficultyIntermediate, "A", nil},
	{"DNS menggunakan TCP untuk setiap query.", model.QuestionTypeTrueFalse, model.DifficultyIntermediate, "FALSE", nil},
	{"Perintah untuk melihat tabel routing di Linux adalah?", model.QuestionTypeMultipleChoice, model.DifficultyIntermediate, "D", nil},
	{"Protokol routing yang menggunakan algoritma link-state adalah?", model.QuestionTypeMultipleChoice, model.DifficultyAdvanced, "B", nil},
	{
		"Jelaskan fungsi DHCP dalam jaringan.", model.QuestionTypeOpenText, model.DifficultyAdvanced, "",
		&model.OpenTextConfig{
			Mode: model.GradingKeywords,
			Keywords: []model.Keyword{
				{Word: "alamat", Weight: 2, Synonyms: []string{"address"}, Required: true},
				{Word: "otomatis", Weight: 1, Synonyms: []string{"automatic"}},
				{Word: "ip", Weight: 1},
			},
			SimilarityThreshold: 0.6,
			MinLength:           10,
			MaxLength:           1000,
		},
	},
}

func main() {
	var (
		authorID  = flag.Int("author", 1, "Author (staff) user ID")
		studentID = flag.Int("student", 1001, "Student ID to mint a demo token for")
		title     = flag.String("title", "Ujian Jaringan Dasar", "Exam title")
		duration  = flag.Int("duration", 60, "Duration in minutes")
		openHours = flag.Int("open-hours", 4, "Hours from now until the exam window closes")
		maxTabs   = flag.Int("max-tab-switches", 3, "Anti-cheat tab switch limit (0 for none)")
		tokens    = flag.Bool("tokens", true, "Print demo student and staff tokens")
	)
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	now := time.Now()
	start := now.Add(-10 * time.Minute)
	end := now.Add(time.Duration(*openHours) * time.Hour)

	exam := &model.Exam{
		Title:               *title,
		AuthorID:            *authorID,
		Status:              model.ExamStatusPublished,
		StartTime:           &start,
		EndTime:             &end,
		DurationMinutes:     *duration,
		PassingScore:        60,
		MaxAttempts:         2,
		TimeBetweenAttempts: 1,
		EvaluationType:      model.EvaluationOpenText,
		Decorators:          []string{"time_bonus", "badges", "detailed_stats"},
	}
	if *maxTabs > 0 {
		exam.AntiCheat.MaxTabSwitches = maxTabs
	}

	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam %q with ID: %s\n", exam.Title, exam.ID)

	created := 0
	for i, sq := range questions {
		q := &model.Question{
			ExamID:        exam.ID,
			QuestionText:  sq.text,
			QuestionType:  sq.typ,
			Points:        1,
			Difficulty:    sq.difficulty,
			CorrectOption: sq.correct,
			OpenText:      sq.openText,
			OrderNum:      i + 1,
		}
		if sq.openText != nil {
			q.Points = 4
		}
		if err := questionRepo.Create(ctx, q); err != nil {
			fmt.Printf("Error creating question %d: %v\n", i+1, err)
			continue
		}
		created++
	}
	fmt.Printf("Seed completed! Added %d/%d questions.\n", created, len(questions))

	if !*tokens {
		return
	}

	auth := service.NewAuthService(cfg)
	studentToken, err := auth.GenerateToken(service.TokenTypeStudent, *studentID, nil, 24*time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign student token")
	}
	staffToken, err := auth.GenerateToken(service.TokenTypeStaff, *authorID,
		[]string{string(model.PermissionLateCodesIssue)}, 24*time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign staff token")
	}
	fmt.Printf("\nStudent %d token:\n%s\n", *studentID, studentToken)
	fmt.Printf("\nStaff %d token:\n%s\n", *authorID, staffToken)
}
