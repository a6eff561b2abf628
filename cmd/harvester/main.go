package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/irdatalab/mojavez-harvester/pkg/checkpoint"
	"github.com/irdatalab/mojavez-harvester/pkg/enrich"
	"github.com/irdatalab/mojavez-harvester/pkg/graphql"
	"github.com/irdatalab/mojavez-harvester/pkg/harvest"
	"github.com/irdatalab/mojavez-harvester/pkg/logging"
	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
	"github.com/irdatalab/mojavez-harvester/pkg/postgres"
	"github.com/irdatalab/mojavez-harvester/pkg/runner"
)

func main() {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	})

	endpoint := getEnv("GRAPHQL_ENDPOINT", "https://qr.mojavez.ir/graphql")
	trackBase := getEnv("TRACK_BASE_URL", "https://qr.mojavez.ir")
	userAgent := getEnv("USER_AGENT", "mojavez-harvester/0.1.0")
	port := getEnv("PORT", "8080")

	db, err := postgres.NewConnection(postgres.Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		DBName:   getEnv("DB_NAME", "harvester"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer db.Close()

	execCfg := graphql.DefaultConfig(endpoint)
	execCfg.UserAgent = userAgent
	executor, err := graphql.New(execCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create query executor")
	}
	registry := mojavez.NewClient(executor)

	// Geography directory, optionally cached in Redis.
	var dir harvest.GeoDirectory = mojavez.NewDirectory(registry, nil)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", redisURL).Msg("Failed to connect to Redis")
		}
		dir = mojavez.NewDirectory(registry, redisClient)
		log.Info().Str("addr", redisURL).Msg("Geography cache enabled")
	}

	jobs := postgres.NewJobStore(db)
	records := postgres.NewRecordStore(db)
	details := postgres.NewDetailStore(db)

	var enricher *enrich.Enricher
	if getEnv("ENRICH_DETAILS", "true") == "true" {
		track := enrich.NewTrackClient(enrich.TrackConfig{
			BaseURL:   trackBase,
			UserAgent: userAgent,
		})
		enricher = enrich.New(registry, track, jobs, records, details, enrich.Config{})
	}

	run := runner.New(jobs, records, registry, registry, dir, enricher, runner.Config{
		Planner: harvest.DefaultConfig(),
	})

	// Health and metrics endpoints serve while the job runs.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Info().Str("port", port).Msg("Serving health and metrics")
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	jobID, err := resolveJob(context.Background(), jobs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve job")
	}

	if err := run.Run(context.Background(), jobID); err != nil {
		log.Fatal().Err(err).Str("job_id", jobID.String()).Msg("Harvest failed")
	}
}

// resolveJob returns the job named by JOB_ID, or creates one from the
// START_DATE/END_DATE environment when no id is given.
func resolveJob(ctx context.Context, jobs checkpoint.JobStore) (uuid.UUID, error) {
	if raw := os.Getenv("JOB_ID"); raw != "" {
		return uuid.Parse(raw)
	}

	start, err := mojavez.ParseAPIDate(getEnv("START_DATE", ""))
	if err != nil {
		return uuid.Nil, err
	}
	end, err := mojavez.ParseAPIDate(getEnv("END_DATE", ""))
	if err != nil {
		return uuid.Nil, err
	}

	var provinceID, townshipID *int
	if v := os.Getenv("PROVINCE_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return uuid.Nil, err
		}
		provinceID = &id
	}
	if v := os.Getenv("TOWNSHIP_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return uuid.Nil, err
		}
		townshipID = &id
	}

	name := getEnv("JOB_NAME", "harvest-"+time.Now().UTC().Format("20060102-150405"))
	job := checkpoint.NewJob(name, start, end, provinceID, townshipID)
	if err := jobs.Create(ctx, job); err != nil {
		return uuid.Nil, err
	}
	log.Info().Str("job_id", job.ID.String()).Str("name", name).Msg("Created job")
	return job.ID, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
