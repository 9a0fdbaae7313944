package models

import "time"

// Metric names used as keys in history maps and in the metrics table.
const (
	MetricWeight           = "weight"
	MetricHeight           = "height"
	MetricHeartRate        = "heart_rate"
	MetricSystolic         = "blood_pressure_systolic"
	MetricDiastolic        = "blood_pressure_diastolic"
	MetricBloodSugar       = "blood_sugar"
	MetricTemperature      = "temperature"
	MetricOxygenSaturation = "oxygen_saturation"
	MetricSleepHours       = "sleep_hours"
	MetricSteps            = "steps"
)

// BloodPressure pairs one systolic/diastolic reading.
type BloodPressure struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// HealthProfile is the latest per-metric snapshot for a user. Every field is
// optional; BMI is present only when both weight and height are known and is
// always recomputed from them, never read back as stored truth.
type HealthProfile struct {
	Weight           *float64       `json:"weight,omitempty"`
	Height           *float64       `json:"height,omitempty"`
	BMI              *float64       `json:"bmi,omitempty"`
	HeartRate        *int           `json:"heart_rate,omitempty"`
	BloodPressure    *BloodPressure `json:"blood_pressure,omitempty"`
	BloodSugar       *float64       `json:"blood_sugar,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	OxygenSaturation *int           `json:"oxygen_saturation,omitempty"`
	SleepHours       *float64       `json:"sleep_hours,omitempty"`
	Steps            *int           `json:"steps,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty"`
}

// MetricSample is one observation of one metric. Sampling is irregular and
// gaps are expected.
type MetricSample struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// MetricsInput is one write of health metrics; nil fields were not measured.
// A zero RecordedAt means "now".
type MetricsInput struct {
	Weight           *float64  `json:"weight"`
	Height           *float64  `json:"height"`
	HeartRate        *int      `json:"heart_rate"`
	Systolic         *int      `json:"blood_pressure_systolic"`
	Diastolic        *int      `json:"blood_pressure_diastolic"`
	BloodSugar       *float64  `json:"blood_sugar"`
	Temperature      *float64  `json:"temperature"`
	OxygenSaturation *int      `json:"oxygen_saturation"`
	SleepHours       *float64  `json:"sleep_hours"`
	Steps            *int      `json:"steps"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// Empty reports whether the input carries no measured value at all.
func (in MetricsInput) Empty() bool {
	return in.Weight == nil && in.Height == nil && in.HeartRate == nil &&
		in.Systolic == nil && in.Diastolic == nil && in.BloodSugar == nil &&
		in.Temperature == nil && in.OxygenSaturation == nil &&
		in.SleepHours == nil && in.Steps == nil
}

// FoodItem is one food entry inside a meal.
type FoodItem struct {
	Name     string  `json:"name"`
	Amount   string  `json:"amount"`
	Calories float64 `json:"calories,omitempty"`
}

// Meal groups food items under a meal type (breakfast, lunch, ...).
type Meal struct {
	MealType  string     `json:"meal_type"`
	FoodItems []FoodItem `json:"food_items"`
}

// DomainRecord is one entry of per-feature history (a logged meal, an
// exercise session) kept so later requests can reference recent activity.
type DomainRecord struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	Feature   string         `json:"feature"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
