package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DateTimeToolID is the stable identifier for the built-in date/time tool.
const DateTimeToolID = "datetime"

// NewDateTimeTool builds the built-in date and time tool: current time,
// formatting, parsing, duration arithmetic, diffing, timezone conversion,
// and day-of-week lookup, each exposed as its own method.
func NewDateTimeTool() Tool {
	return &dateTimeTool{}
}

type dateTimeTool struct{}

func (t *dateTimeTool) ToolID() string { return DateTimeToolID }

func (t *dateTimeTool) Methods() []Method {
	str := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": desc}
	}
	obj := func(required []string, props map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{"type": "object", "required": required, "properties": props}
	}

	return []Method{
		{
			Name:        "current_time",
			Description: "Get the current time in a given timezone and format",
			Parameters: obj(nil, map[string]interface{}{
				"timezone": str("Timezone (e.g., UTC, America/New_York, Asia/Tokyo)"),
				"format":   str("Output format: RFC3339, RFC1123, Unix, or a custom Go layout"),
			}),
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				tz, _ := params["timezone"].(string)
				format, _ := params["format"].(string)
				return getCurrentTime(tz, format)
			},
		},
		{
			Name:        "format_date",
			Description: "Format a date string into another format",
			Parameters: obj([]string{"date"}, map[string]interface{}{
				"date":     str("Date string (e.g., 2006-01-02 or 2006-01-02 15:04:05)"),
				"format":   str("Output format: RFC3339, RFC1123, Unix, or a custom Go layout"),
				"timezone": str("Timezone to render the result in"),
			}),
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				date, _ := params["date"].(string)
				format, _ := params["format"].(string)
				tz, _ := params["timezone"].(string)
				return formatDate(date, format, tz)
			},
		},
		{
			Name:        "parse_date",
			Description: "Parse a date string and return its components",
			Parameters: obj([]string{"date"}, map[string]interface{}{
				"date":     str("Date string to parse"),
				"timezone": str("Timezone to render the result in"),
			}),
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				date, _ := params["date"].(string)
				tz, _ := params["timezone"].(string)
				return parseDate(date, tz)
			},
		},
		{
			Name:        "add_duration",
			Description: "Add a duration (e.g. 24h, 30m, 7d) to a date",
			Parameters: obj([]string{"date", "duration"}, map[string]interface{}{
				"date":     str("Base date string"),
				"duration": str("Duration to add (e.g. 24h, 30m, 7d)"),
				"timezone": str("Timezone to render the result in"),
			}),
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				date, _ := params["date"].(string)
				duration, _ := params["duration"].(string)
				tz, _ := params["timezone"].(string)
				return addDuration(date, duration, tz)
			},
		},
		{
			Name:        "date_diff",
			Description: "Compute the difference between two dates",
			Parameters: obj([]string{"date", "date2"}, map[string]interface{}{
				"date":  str("First date string"),
				"date2": str("Second date string"),
			}),
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				date1, _ := params["date"].(string)
				date2, _ := params["date2"].(string)
				return dateDiff(date1, date2)
			},
		},
		{
			Name:        "convert_timezone",
			Description: "Convert a date from its parsed timezone to another",
			Parameters: obj([]string{"date", "timezone"}, map[string]interface{}{
				"date":     str("Date string to convert"),
				"timezone": str("Target timezone"),
			}),
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				date, _ := params["date"].(string)
				tz, _ := params["timezone"].(string)
				return convertTimezone(date, tz)
			},
		},
		{
			Name:        "day_of_week",
			Description: "Get the day of week and ISO week number for a date",
			Parameters: obj([]string{"date"}, map[string]interface{}{
				"date": str("Date string"),
			}),
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				date, _ := params["date"].(string)
				return dayOfWeek(date)
			},
			InlineMarkup: &InlineMarkupSchema{
				Tag: "day_of_week",
				Params: map[string]ParamSource{
					"date": {Kind: ParamFromAttribute},
				},
				Example: `<day_of_week date="2025-12-25"/>`,
			},
		},
	}
}

func getCurrentTime(tz, format string) (string, error) {
	loc, err := getLocation(tz)
	if err != nil {
		return "", err
	}

	now := time.Now().In(loc)
	formatted := formatTime(now, format)

	return fmt.Sprintf("Current time in %s:\n%s\nUnix: %d", loc.String(), formatted, now.Unix()), nil
}

func formatDate(dateStr, format, tz string) (string, error) {
	t, err := parseDateTime(dateStr)
	if err != nil {
		return "", err
	}

	if tz != "" {
		loc, err := getLocation(tz)
		if err != nil {
			return "", err
		}
		t = t.In(loc)
	}

	formatted := formatTime(t, format)
	return fmt.Sprintf("Formatted date:\n%s", formatted), nil
}

func parseDate(dateStr, tz string) (string, error) {
	t, err := parseDateTime(dateStr)
	if err != nil {
		return "", err
	}

	if tz != "" {
		loc, err := getLocation(tz)
		if err != nil {
			return "", err
		}
		t = t.In(loc)
	}

	var result strings.Builder
	result.WriteString("Parsed date details:\n")
	result.WriteString(fmt.Sprintf("  Date: %s\n", t.Format("2006-01-02")))
	result.WriteString(fmt.Sprintf("  Time: %s\n", t.Format("15:04:05")))
	result.WriteString(fmt.Sprintf("  Timezone: %s\n", t.Location()))
	result.WriteString(fmt.Sprintf("  Day of week: %s\n", t.Weekday()))
	result.WriteString(fmt.Sprintf("  Day of year: %d\n", t.YearDay()))
	result.WriteString(fmt.Sprintf("  Week number: %d\n", getWeekNumber(t)))
	result.WriteString(fmt.Sprintf("  Unix timestamp: %d\n", t.Unix()))
	result.WriteString(fmt.Sprintf("  RFC3339: %s\n", t.Format(time.RFC3339)))

	return result.String(), nil
}

func addDuration(dateStr, duration, tz string) (string, error) {
	t, err := parseDateTime(dateStr)
	if err != nil {
		return "", err
	}

	d, err := parseDuration(duration)
	if err != nil {
		return "", err
	}

	newTime := t.Add(d)

	if tz != "" {
		loc, err := getLocation(tz)
		if err != nil {
			return "", err
		}
		newTime = newTime.In(loc)
	}

	return fmt.Sprintf("Original: %s\nDuration: %s\nResult: %s",
		t.Format(time.RFC3339), duration, newTime.Format(time.RFC3339)), nil
}

func dateDiff(date1Str, date2Str string) (string, error) {
	t1, err := parseDateTime(date1Str)
	if err != nil {
		return "", fmt.Errorf("invalid date1: %w", err)
	}

	t2, err := parseDateTime(date2Str)
	if err != nil {
		return "", fmt.Errorf("invalid date2: %w", err)
	}

	diff := t2.Sub(t1)
	days := int(diff.Hours() / 24)
	hours := int(diff.Hours()) % 24
	minutes := int(diff.Minutes()) % 60

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Date 1: %s\n", t1.Format(time.RFC3339)))
	result.WriteString(fmt.Sprintf("Date 2: %s\n", t2.Format(time.RFC3339)))
	result.WriteString(fmt.Sprintf("Difference: %d days, %d hours, %d minutes\n", days, hours, minutes))
	result.WriteString(fmt.Sprintf("Total hours: %.2f\n", diff.Hours()))
	result.WriteString(fmt.Sprintf("Total minutes: %.0f\n", diff.Minutes()))

	return result.String(), nil
}

func convertTimezone(dateStr, targetTZ string) (string, error) {
	t, err := parseDateTime(dateStr)
	if err != nil {
		return "", err
	}

	targetLoc, err := getLocation(targetTZ)
	if err != nil {
		return "", err
	}

	converted := t.In(targetLoc)

	return fmt.Sprintf("Original: %s (%s)\nConverted: %s (%s)",
		t.Format(time.RFC3339), t.Location(),
		converted.Format(time.RFC3339), targetLoc), nil
}

func dayOfWeek(dateStr string) (string, error) {
	t, err := parseDateTime(dateStr)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Date: %s\nDay of week: %s\nWeek number: %d",
		t.Format("2006-01-02"), t.Weekday(), getWeekNumber(t)), nil
}

func parseDateTime(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"02-01-2006",
		time.RFC1123,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s (try format: 2006-01-02 or 2006-01-02 15:04:05)", dateStr)
}

func getLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %s (try: UTC, America/New_York, Asia/Tokyo)", tz)
	}

	return loc, nil
}

func formatTime(t time.Time, format string) string {
	if format == "" {
		format = time.RFC3339
	}

	switch strings.ToLower(format) {
	case "rfc3339":
		return t.Format(time.RFC3339)
	case "rfc1123":
		return t.Format(time.RFC1123)
	case "unix":
		return fmt.Sprintf("%d", t.Unix())
	default:
		return t.Format(format)
	}
}

func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		daysStr := strings.TrimSuffix(s, "d")
		var days int
		if _, err := fmt.Sscanf(daysStr, "%d", &days); err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %s (use: 24h, 30m, 7d)", s)
	}

	return d, nil
}

func getWeekNumber(t time.Time) int {
	_, week := t.ISOWeek()
	return week
}
