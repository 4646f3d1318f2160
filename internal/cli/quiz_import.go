package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stemsi/shikkha-backend/internal/database"
	"github.com/stemsi/shikkha-backend/internal/model"
	"github.com/stemsi/shikkha-backend/internal/repository"
	"github.com/stemsi/shikkha-backend/internal/service"
	"gopkg.in/yaml.v3"
)

// quizFile is one YAML document describing a quiz. A file may hold several
// documents separated by "---".
type quizFile struct {
	Title            string     `yaml:"title"`
	Description      string     `yaml:"description"`
	CourseID         string     `yaml:"course_id"`
	TimeLimitMinutes *int       `yaml:"time_limit_minutes"`
	Active           *bool      `yaml:"active"`
	StartsAt         *time.Time `yaml:"starts_at"`
	EndsAt           *time.Time `yaml:"ends_at"`
	Questions        []struct {
		Prompt        string   `yaml:"prompt"`
		Options       []string `yaml:"options"`
		CorrectOption int      `yaml:"correct_option"`
		Points        int      `yaml:"points"`
		Explanation   string   `yaml:"explanation"`
	} `yaml:"questions"`
}

func decodeQuizFiles(r io.Reader) ([]quizFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var out []quizFile
	for {
		var f quizFile
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", len(out)+1, err)
		}
		out = append(out, f)
	}
}

// request maps the document onto the same payload the HTTP API accepts, so
// imports go through identical validation.
func (f quizFile) request() (model.CreateQuizRequest, error) {
	req := model.CreateQuizRequest{
		Title:            f.Title,
		Description:      f.Description,
		TimeLimitMinutes: f.TimeLimitMinutes,
		Active:           f.Active,
		StartsAt:         f.StartsAt,
		EndsAt:           f.EndsAt,
		Questions:        make([]model.CreateQuestionRequest, len(f.Questions)),
	}
	if f.CourseID != "" {
		id, err := uuid.Parse(f.CourseID)
		if err != nil {
			return req, fmt.Errorf("course_id: %w", err)
		}
		req.CourseID = &id
	}
	for i, q := range f.Questions {
		req.Questions[i] = model.CreateQuestionRequest{
			Prompt:        q.Prompt,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			Points:        q.Points,
			Explanation:   q.Explanation,
		}
	}
	return req, nil
}

func newImportQuizCmd(e *env) *cobra.Command {
	var authorEmail string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import-quiz FILE...",
		Short: "Create quizzes from YAML files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var docs []quizFile
			for _, path := range args {
				fh, err := os.Open(path)
				if err != nil {
					return err
				}
				parsed, err := decodeQuizFiles(fh)
				fh.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				docs = append(docs, parsed...)
			}

			ctx := cmd.Context()
			pool, err := database.NewPostgresPool(ctx, e.cfg, e.log)
			if err != nil {
				return err
			}
			defer pool.Close()
			rdb, err := database.NewRedisClient(ctx, e.cfg, e.log)
			if err != nil {
				return err
			}
			defer rdb.Close()

			author, err := repository.NewUserRepository(pool).GetByEmail(ctx, authorEmail)
			if err != nil {
				return fmt.Errorf("author %s: %w", authorEmail, err)
			}

			quizRepo := repository.NewQuizRepository(pool)
			cache := repository.NewQuizCache(rdb, quizRepo, e.cfg.QuizCacheTTL, e.log)
			quizzes := service.NewQuizService(quizRepo, cache, repository.NewCourseRepository(pool), e.log)

			var failed int
			for i, doc := range docs {
				log := e.log.With().Int("document", i+1).Str("title", doc.Title).Logger()
				req, err := doc.request()
				if err != nil {
					log.Error().Err(err).Msg("Skipped")
					failed++
					continue
				}
				if dryRun {
					if _, err := quizzes.Preview(author.ID, author.Role, req); err != nil {
						log.Error().Err(err).Msg("Invalid")
						failed++
					} else {
						log.Info().Msg("Valid")
					}
					continue
				}
				q, err := quizzes.Create(ctx, author.ID, author.Role, req)
				if err != nil {
					log.Error().Err(err).Msg("Import failed")
					failed++
					continue
				}
				log.Info().Str("quiz_id", q.ID.String()).Int("total_points", q.TotalPoints()).Msg("Imported")
			}

			if !dryRun {
				if n, err := quizzes.Warm(ctx); err != nil {
					e.log.Warn().Err(err).Msg("Cache warm failed")
				} else {
					e.log.Info().Int("quizzes", n).Msg("Quiz cache warmed")
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d quizzes failed", failed, len(docs))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&authorEmail, "author", "", "email of the teacher or admin who owns the quizzes")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only, write nothing")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}
