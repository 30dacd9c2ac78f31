package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"telegram-tarot-miniapp/internal/config"
	"telegram-tarot-miniapp/internal/domain/model"
	pg "telegram-tarot-miniapp/internal/infra/db/postgres"
)

// Schema bootstrap. Idempotent: every statement is IF NOT EXISTS, safe to
// rerun on deploy.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id                        UUID PRIMARY KEY,
  telegram_id               BIGINT NOT NULL,
  username                  TEXT NOT NULL DEFAULT '',
  registered_at             TIMESTAMPTZ NOT NULL,
  last_active_at            TIMESTAMPTZ NOT NULL,
  subscription_status       SMALLINT NOT NULL DEFAULT 0,
  subscription_expiry       TIMESTAMPTZ,
  subscription_activated_at TIMESTAMPTZ,
  free_daily_advice_used    BOOLEAN NOT NULL DEFAULT FALSE,
  free_yes_no_used          BOOLEAN NOT NULL DEFAULT FALSE,
  free_three_cards_used     BOOLEAN NOT NULL DEFAULT FALSE,
  last_daily_advice_date    TIMESTAMPTZ
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_telegram_id_key ON users (telegram_id);`,

	`CREATE TABLE IF NOT EXISTS readings (
  id             TEXT PRIMARY KEY,
  user_id        UUID NOT NULL REFERENCES users (id),
  spread         TEXT NOT NULL,
  category       TEXT NOT NULL DEFAULT '',
  question       TEXT NOT NULL DEFAULT '',
  cards          JSONB NOT NULL,
  interpretation TEXT NOT NULL,
  clarifications JSONB NOT NULL DEFAULT '[]'::jsonb,
  created_at     TIMESTAMPTZ NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS readings_user_created_idx ON readings (user_id, created_at DESC);`,

	`CREATE TABLE IF NOT EXISTS payments (
  id          UUID PRIMARY KEY,
  provider_id TEXT NOT NULL,
  user_id     UUID NOT NULL REFERENCES users (id),
  telegram_id BIGINT NOT NULL,
  plan_type   TEXT NOT NULL,
  amount      BIGINT NOT NULL,
  currency    TEXT NOT NULL,
  status      TEXT NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL,
  updated_at  TIMESTAMPTZ NOT NULL,
  paid_at     TIMESTAMPTZ
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS payments_provider_id_key ON payments (provider_id);`,
	`CREATE INDEX IF NOT EXISTS payments_status_created_idx ON payments (status, created_at);`,
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			log.Fatalf("schema: %v", err)
		}
	}
	fmt.Println("schema is up to date")

	fmt.Println("available plans (fixed in code):")
	for _, p := range model.Plans() {
		fmt.Printf("  - %-10s %3d days  %s %s\n", p.Type, p.DurationDays, p.PriceValue(), p.Currency)
	}
}
