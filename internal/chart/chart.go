package chart

import (
	"math"

	"compliance-dashboard/internal/domain"
)

// 图表类型
const (
	TypeLine = "line"
	TypePie  = "pie"
)

// PlaceholderMessage 无数据时的提示
const PlaceholderMessage = "No data available yet"

// Config 图表库输入结构（type / data / options）
type Config struct {
	Type        string  `json:"type"`
	Data        Data    `json:"data"`
	Options     Options `json:"options"`
	Placeholder bool    `json:"placeholder,omitempty"`
	Message     string  `json:"message,omitempty"`
}

type Data struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BorderColor     string    `json:"borderColor,omitempty"`
	BackgroundColor []string  `json:"backgroundColor,omitempty"`
	Fill            bool      `json:"fill,omitempty"`
	Tension         float64   `json:"tension,omitempty"`
}

type Options struct {
	Responsive bool    `json:"responsive"`
	Scales     *Scales `json:"scales,omitempty"`
	Plugins    Plugins `json:"plugins"`
}

type Scales struct {
	Y Axis `json:"y"`
}

type Axis struct {
	BeginAtZero bool   `json:"beginAtZero"`
	Title       *Title `json:"title,omitempty"`
}

type Plugins struct {
	Title  Title  `json:"title"`
	Legend Legend `json:"legend"`
}

type Title struct {
	Display bool   `json:"display"`
	Text    string `json:"text"`
}

type Legend struct {
	Display  bool   `json:"display"`
	Position string `json:"position,omitempty"`
}

// Placeholder 空图表
func Placeholder(kind, title string) Config {
	return Config{
		Type: kind,
		Data: Data{Labels: []string{}, Datasets: []Dataset{}},
		Options: Options{
			Responsive: true,
			Plugins:    Plugins{Title: Title{Display: true, Text: title}},
		},
		Placeholder: true,
		Message:     PlaceholderMessage,
	}
}

// UsageLine 每天一个点，数值为小时，y 轴从 0 开始
func UsageLine(a *domain.Analytics) Config {
	const title = "Daily Usage (hours)"
	if a == nil || len(a.TimeSeries) == 0 {
		return Placeholder(TypeLine, title)
	}

	labels := make([]string, 0, len(a.TimeSeries))
	values := make([]float64, 0, len(a.TimeSeries))
	for _, p := range a.TimeSeries {
		hours := p.UsageHours
		if hours == 0 && p.UsageMinutes > 0 {
			hours = round(float64(p.UsageMinutes)/60, 2)
		}
		labels = append(labels, p.Date)
		values = append(values, hours)
	}

	return Config{
		Type: TypeLine,
		Data: Data{
			Labels: labels,
			Datasets: []Dataset{{
				Label:       "Usage Hours",
				Data:        values,
				BorderColor: "rgb(59, 130, 246)",
				Tension:     0.1,
			}},
		},
		Options: Options{
			Responsive: true,
			Scales: &Scales{Y: Axis{
				BeginAtZero: true,
				Title:       &Title{Display: true, Text: "Hours"},
			}},
			Plugins: Plugins{
				Title:  Title{Display: true, Text: title},
				Legend: Legend{Display: false},
			},
		},
	}
}

// DayNightPie 分钟换算为小时并保留一位小数；两项都为 0 视为无数据
func DayNightPie(a *domain.Analytics) Config {
	const title = "Day vs Night Usage"
	if a == nil || a.DayNightDistribution == nil {
		return Placeholder(TypePie, title)
	}
	dist := a.DayNightDistribution
	if dist.Day <= 0 && dist.Night <= 0 {
		return Placeholder(TypePie, title)
	}

	return Config{
		Type: TypePie,
		Data: Data{
			Labels: []string{"Day", "Night"},
			Datasets: []Dataset{{
				Label:           "Hours",
				Data:            []float64{round(dist.Day/60, 1), round(dist.Night/60, 1)},
				BackgroundColor: []string{"rgb(251, 191, 36)", "rgb(99, 102, 241)"},
			}},
		},
		Options: Options{
			Responsive: true,
			Plugins: Plugins{
				Title:  Title{Display: true, Text: title},
				Legend: Legend{Display: true, Position: "bottom"},
			},
		},
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
