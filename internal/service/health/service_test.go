package health

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"healthmate/internal/config"
	"healthmate/internal/models"
	"healthmate/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// One connection keeps every statement on the same in-memory database.
	db.SetMaxOpenConns(1)
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRegisterAndLogin(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, "sam", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID <= 0 || user.Username != "sam" {
		t.Fatalf("unexpected user: %#v", user)
	}

	got, err := svc.Login(ctx, "sam", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("login returned wrong user: %d != %d", got.ID, user.ID)
	}

	if _, err := svc.Login(ctx, "sam", "wrong"); err == nil {
		t.Fatalf("wrong password must fail")
	}
	if _, err := svc.RegisterUser(ctx, "sam", "again"); err == nil {
		t.Fatalf("duplicate username must fail")
	}
}

func TestComputeBMI(t *testing.T) {
	if got := ComputeBMI(70.5, 175.0); got != 23.0 {
		t.Fatalf("BMI = %v, want 23.0", got)
	}
	if got := ComputeBMI(80, 0); got != 0 {
		t.Fatalf("zero height must not divide, got %v", got)
	}
}

func TestAddMetricsAndLatest(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()
	user, err := svc.RegisterUser(ctx, "sam", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	weight, height := 70.5, 175.0
	if _, err := svc.AddMetrics(ctx, user.ID, models.MetricsInput{
		Weight:     &weight,
		Height:     &height,
		RecordedAt: time.Now().Add(-48 * time.Hour),
	}); err != nil {
		t.Fatalf("add metrics: %v", err)
	}

	heartRate := 62
	if _, err := svc.AddMetrics(ctx, user.ID, models.MetricsInput{
		HeartRate:  &heartRate,
		RecordedAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("add metrics: %v", err)
	}

	profile, err := svc.LatestMetrics(ctx, user.ID)
	if err != nil {
		t.Fatalf("latest metrics: %v", err)
	}
	if profile.Weight == nil || *profile.Weight != 70.5 {
		t.Fatalf("weight not coalesced from older snapshot: %#v", profile.Weight)
	}
	if profile.HeartRate == nil || *profile.HeartRate != 62 {
		t.Fatalf("heart rate missing: %#v", profile.HeartRate)
	}
	if profile.BMI == nil || *profile.BMI != 23.0 {
		t.Fatalf("BMI = %#v, want 23.0", profile.BMI)
	}
}

func TestLatestMetricsBMIAbsentWithoutPair(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()
	user, err := svc.RegisterUser(ctx, "sam", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	weight := 70.5
	if _, err := svc.AddMetrics(ctx, user.ID, models.MetricsInput{Weight: &weight}); err != nil {
		t.Fatalf("add metrics: %v", err)
	}
	profile, err := svc.LatestMetrics(ctx, user.ID)
	if err != nil {
		t.Fatalf("latest metrics: %v", err)
	}
	if profile.BMI != nil {
		t.Fatalf("BMI must be absent without height, got %v", *profile.BMI)
	}
}

func TestAddMetricsRejectsEmptyInput(t *testing.T) {
	svc := NewService(openTestDB(t))
	if _, err := svc.AddMetrics(context.Background(), 1, models.MetricsInput{}); err == nil {
		t.Fatalf("empty input must be rejected")
	}
}

func TestMetricsHistory(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()
	user, err := svc.RegisterUser(ctx, "sam", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	for i, w := range []float64{72.0, 71.2, 70.5} {
		weight := w
		if _, err := svc.AddMetrics(ctx, user.ID, models.MetricsInput{
			Weight:     &weight,
			RecordedAt: time.Now().Add(-time.Duration(72-24*i) * time.Hour),
		}); err != nil {
			t.Fatalf("add metrics: %v", err)
		}
	}

	history, err := svc.MetricsHistory(ctx, user.ID, time.Now().AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	samples := history[models.MetricWeight]
	if len(samples) != 3 {
		t.Fatalf("weight samples = %d", len(samples))
	}
	if samples[0].Value != 72.0 || samples[2].Value != 70.5 {
		t.Fatalf("samples out of order: %#v", samples)
	}
	if _, ok := history[models.MetricHeight]; ok {
		t.Fatalf("height was never recorded")
	}
}

func TestDietaryRestrictions(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()
	user, err := svc.RegisterUser(ctx, "sam", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.AddDietaryRestriction(ctx, user.ID, "Vegetarian"); err != nil {
		t.Fatalf("add restriction: %v", err)
	}
	// re-adding with different case is a no-op
	if err := svc.AddDietaryRestriction(ctx, user.ID, "vegetarian"); err != nil {
		t.Fatalf("re-add restriction: %v", err)
	}
	restrictions, err := svc.DietaryRestrictions(ctx, user.ID)
	if err != nil {
		t.Fatalf("list restrictions: %v", err)
	}
	if len(restrictions) != 1 || restrictions[0] != "vegetarian" {
		t.Fatalf("restrictions = %v", restrictions)
	}

	if err := svc.RemoveDietaryRestriction(ctx, user.ID, "vegetarian"); err != nil {
		t.Fatalf("remove restriction: %v", err)
	}
	restrictions, err = svc.DietaryRestrictions(ctx, user.ID)
	if err != nil {
		t.Fatalf("list restrictions: %v", err)
	}
	if len(restrictions) != 0 {
		t.Fatalf("restriction not removed: %v", restrictions)
	}
}

func TestDomainHistory(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()
	user, err := svc.RegisterUser(ctx, "sam", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.AddDomainRecord(ctx, user.ID, "diet_advice", map[string]any{"advice": "less sugar"}); err != nil {
		t.Fatalf("add record: %v", err)
	}
	records, err := svc.RecentDomainHistory(ctx, user.ID, "diet_advice", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d", len(records))
	}
	if records[0].Payload["advice"] != "less sugar" {
		t.Fatalf("payload = %#v", records[0].Payload)
	}

	if _, err := svc.RecentDomainHistory(ctx, user.ID, "exercise_recommendation", 10); err != nil {
		t.Fatalf("empty history should not error: %v", err)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()
	user, err := svc.RegisterUser(ctx, "sam", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	weight := 70.0
	if _, err := svc.AddMetrics(ctx, user.ID, models.MetricsInput{Weight: &weight}); err != nil {
		t.Fatalf("add metrics: %v", err)
	}
	if err := svc.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetUser(ctx, user.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("user should be gone, err = %v", err)
	}
	if err := svc.DeleteUser(ctx, user.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("second delete should report no rows, err = %v", err)
	}
}
