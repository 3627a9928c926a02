//go:build integration

package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase("ria_hunter_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts("testdata/schema.sql"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, PostgresConfig{DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	seed(t, db)
	return db
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO ria_profiles (crd_number, legal_name, city, state, aum, employee_count, private_fund_count, private_fund_aum, vc_total_aum, vc_fund_count)
		 VALUES
		 ('100', 'GATEWAY VENTURE ADVISORS', 'ST. LOUIS', 'MO', 800000000, 20, 4, 300000000, NULL, NULL),
		 ('200', 'ARCH WEALTH PARTNERS', 'SAINT LOUIS', 'MO', 450000000, 12, 0, 0, NULL, NULL),
		 ('300', 'MISSISSIPPI GIANT CAPITAL', 'ST LOUIS', 'MO', 900000000000, 9000, 0, 0, NULL, NULL),
		 ('400', 'LEGACY GROWTH LLC', 'CLAYTON', 'MO', NULL, 5, NULL, NULL, 120000000, 2),
		 ('500', 'BAYSIDE ADVISERS', 'SAN FRANCISCO', 'CA', 2000000000, 40, 6, 900000000, NULL, NULL)`,
		`INSERT INTO narratives (crd_number, narrative, embedding) VALUES
		 ('100', 'Venture capital adviser focused on early stage technology funds', '[1,0,0]'),
		 ('200', 'Wealth management for families and retirement planning', '[0,1,0]'),
		 ('500', 'Venture and growth equity private funds in the Bay Area', '[0.9,0.1,0]')`,
		`INSERT INTO control_persons (crd_number, person_name, title) VALUES
		 ('100', 'Jane Smith', 'Managing Partner'),
		 ('100', 'Robert Jones', NULL),
		 ('300', 'Alice Giant', 'CEO')`,
		`INSERT INTO ria_private_funds (crd_number, fund_name, fund_type, gross_asset_value, min_investment) VALUES
		 ('100', 'Gateway Fund I', 'Venture Capital Fund', 100000000, 250000),
		 ('100', 'Gateway Fund II', 'Venture Capital Fund', 200000000, 500000)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
}

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := setupPostgres(t)
	store := NewPostgresStore(db)
	ctx := context.Background()

	t.Run("hybrid search respects location", func(t *testing.T) {
		matches, err := store.HybridSearch(ctx, HybridSearchParams{
			QueryText:  "venture capital",
			Embedding:  []float32{1, 0, 0},
			MatchCount: 10,
			State:      "MO",
		})
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, "100", matches[0].CRDNumber)
		for _, m := range matches {
			assert.NotEqual(t, "500", m.CRDNumber)
		}
	})

	t.Run("structured query matches all St. Louis spellings", func(t *testing.T) {
		rows, err := store.QueryProfiles(ctx, ProfileQuery{
			State:        "MO",
			CityVariants: []string{"St. Louis", "ST LOUIS", "Saint Louis"},
			SortBy:       SortByAUM,
			SortDesc:     true,
			Limit:        10,
		})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "300", rows[0].CRDNumber)
		assert.Equal(t, "100", rows[1].CRDNumber)
		assert.Equal(t, "200", rows[2].CRDNumber)
	})

	t.Run("top by aum excludes matched firms", func(t *testing.T) {
		rows, err := TopByAUM(ctx, store, "MO", []string{"St. Louis", "ST LOUIS"}, []string{"100"}, 5)
		require.NoError(t, err)
		require.NotEmpty(t, rows)
		assert.Equal(t, "300", rows[0].CRDNumber)
		for _, r := range rows {
			assert.NotEqual(t, "100", r.CRDNumber)
		}
	})

	t.Run("legacy aliases and nulls sort last", func(t *testing.T) {
		rows, err := store.QueryProfiles(ctx, ProfileQuery{State: "MO", SortBy: SortByAUM, SortDesc: false, Limit: 10})
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, "400", rows[0].CRDNumber, "vc_total_aum stands in for missing aum")
		assert.Equal(t, 120000000.0, rows[0].ResolvedAUM())
	})

	t.Run("enrichment lookups", func(t *testing.T) {
		execs, err := store.ExecutivesByCRD(ctx, []string{"100", "300", "999"})
		require.NoError(t, err)
		assert.Len(t, execs["100"], 2)
		assert.Equal(t, "CEO", execs["300"][0].Title)

		funds, err := store.PrivateFundsByCRD(ctx, []string{"100"})
		require.NoError(t, err)
		require.Len(t, funds["100"], 2)
		assert.Equal(t, "Gateway Fund II", funds["100"][0].FundName)
	})

	t.Run("executive name search", func(t *testing.T) {
		execs, err := store.SearchExecutives(ctx, "smith", 10)
		require.NoError(t, err)
		require.Len(t, execs, 1)
		assert.Equal(t, "100", execs[0].CRDNumber)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}
