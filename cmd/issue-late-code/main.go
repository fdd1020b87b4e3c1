package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/database"
	"github.com/stemsi/exstem-attempts/internal/logger"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/repository"
	"github.com/stemsi/exstem-attempts/internal/service"
	"golang.org/x/term"
)

func main() {
	var (
		examFlag   = flag.String("exam", "", "Exam ID (UUID)")
		issuer     = flag.Int("issuer", 0, "User ID recorded as the code's generator")
		maxUsages  = flag.Int("max-usages", 1, "How many students may use the code")
		expiresIn  = flag.Int("expires-hours", 0, "Lifetime in hours (0 uses LATE_CODE_TTL_HOURS)")
		assignedTo = flag.Int("assign", 0, "Restrict the code to this student ID (0 for anyone)")
	)
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	// ─── CLI Input ─────────────────────────────────────────────────────
	// Missing values are prompted for only when a person is at the terminal.
	if term.IsTerminal(int(os.Stdin.Fd())) {
		reader := bufio.NewReader(os.Stdin)
		fmt.Fprintln(os.Stderr, "=== Issue Late-Access Code ===")
		if *examFlag == "" {
			*examFlag = prompt(reader, "Exam ID: ")
		}
		if *issuer == 0 {
			*issuer = promptInt(reader, "Issuer user ID: ", 0)
		}
		if !isFlagSet("max-usages") {
			*maxUsages = promptInt(reader, "Max usages (default 1): ", 1)
		}
	}

	examID, err := uuid.Parse(*examFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: -exam must be a valid UUID")
		os.Exit(2)
	}
	if *issuer <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -issuer is required")
		os.Exit(2)
	}

	req := model.GenerateLateCodeRequest{MaxUsages: *maxUsages, ExpiresInHours: *expiresIn}
	if *assignedTo > 0 {
		req.AssignedUserID = assignedTo
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// ─── Connect ───────────────────────────────────────────────────────
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

	// ─── Issue ─────────────────────────────────────────────────────────
	exams := service.NewExamService(repository.NewExamRepository(pool), repository.NewQuestionRepository(pool), rdb, cfg.ExamCacheTTL, log)
	codes := service.NewLateAccessService(repository.NewLateCodeRepository(pool), exams, cfg.LateCodeLength, cfg.LateCodeTTL, log)

	// Operators act with inspector rights.
	code, err := codes.Generate(ctx, examID, service.Actor{UserID: *issuer, Inspector: true}, req)
	if err != nil {
		log.Fatal().Err(err).Str("exam_id", examID.String()).Msg("Failed to issue late-access code")
	}

	fmt.Fprintf(os.Stderr, "Issued code for exam %s, %d usage(s), expires %s\n",
		examID, code.MaxUsages, code.ExpiresAt.Format(time.RFC3339))
	fmt.Println(code.Code)
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Fprint(os.Stderr, label)
	s, _ := r.ReadString('\n')
	return strings.TrimSpace(s)
}

func promptInt(r *bufio.Reader, label string, fallback int) int {
	s := prompt(r, label)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: expected a number")
		os.Exit(2)
	}
	return n
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
