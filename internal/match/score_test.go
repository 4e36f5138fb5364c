package match_test

import (
	"testing"
	"time"

	"github.com/asegarra/lostfound/internal/match"
	"github.com/asegarra/lostfound/internal/store"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func TestScore(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		found store.Item
		lost  store.Item
		want  int
	}{
		{
			name:  "empty items score zero",
			found: store.Item{},
			lost:  store.Item{},
			want:  0,
		},
		{
			name: "high probability example",
			found: store.Item{
				CategoryID:   strPtr("electronics"),
				Color:        strPtr("black"),
				Brand:        strPtr("Samsung"),
				DiscoveredAt: timePtr(base),
				Description:  "telefono movil pantalla rota funda azul",
			},
			lost: store.Item{
				CategoryID:   strPtr("electronics"),
				Color:        strPtr("black"),
				Brand:        strPtr("samsung"),
				DiscoveredAt: timePtr(base.Add(48 * time.Hour)),
				Description:  "movil con pantalla rota y funda",
			},
			// 30 category + 20 color + 15 brand + 10 date + 10 keywords
			want: 85,
		},
		{
			name: "all signals hit reaches 100",
			found: store.Item{
				CategoryID:   strPtr("electronics"),
				Color:        strPtr("black"),
				Brand:        strPtr("Samsung"),
				Model:        strPtr("Galaxy S21"),
				DiscoveredAt: timePtr(base),
				Description:  "telefono movil pantalla rota",
			},
			lost: store.Item{
				CategoryID:   strPtr("electronics"),
				Color:        strPtr("BLACK"),
				Brand:        strPtr("samsung"),
				Model:        strPtr("galaxy s21"),
				DiscoveredAt: timePtr(base),
				Description:  "telefono movil con pantalla rota",
			},
			want: 100,
		},
		{
			name: "partial color credit",
			found: store.Item{
				Color:       strPtr("azul oscuro"),
				Description: "mochila grande",
			},
			lost: store.Item{
				Color:       strPtr("azul"),
				Description: "mochila pequena",
			},
			// 10 partial color + 5 single keyword
			want: 15,
		},
		{
			name: "exact color is not doubled with partial",
			found: store.Item{
				Color: strPtr("Rojo"),
			},
			lost: store.Item{
				Color: strPtr("rojo"),
			},
			want: 20,
		},
		{
			name: "date within week but not near",
			found: store.Item{
				DiscoveredAt: timePtr(base),
			},
			lost: store.Item{
				DiscoveredAt: timePtr(base.Add(5 * 24 * time.Hour)),
			},
			want: 5,
		},
		{
			name: "date outside window scores nothing",
			found: store.Item{
				DiscoveredAt: timePtr(base),
			},
			lost: store.Item{
				DiscoveredAt: timePtr(base.Add(10 * 24 * time.Hour)),
			},
			want: 0,
		},
		{
			name: "missing date on one side skips date signal",
			found: store.Item{
				CategoryID:   strPtr("bags"),
				DiscoveredAt: timePtr(base),
			},
			lost: store.Item{
				CategoryID: strPtr("bags"),
			},
			want: 30,
		},
		{
			name: "stop words do not count as overlap",
			found: store.Item{
				Description: "la de el en con por",
			},
			lost: store.Item{
				Description: "la de el en con por",
			},
			want: 0,
		},
		{
			name: "different categories score nothing",
			found: store.Item{
				CategoryID: strPtr("bags"),
			},
			lost: store.Item{
				CategoryID: strPtr("electronics"),
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := match.Score(tt.found, tt.lost)
			if b.Total != tt.want {
				t.Errorf("Score() = %d (%+v), want %d", b.Total, b, tt.want)
			}
			if b.Total < 0 || b.Total > 100 {
				t.Errorf("Score() = %d out of [0,100]", b.Total)
			}

			// The scoring function itself is symmetric.
			rev := match.Score(tt.lost, tt.found)
			if rev.Total != b.Total {
				t.Errorf("Score() not symmetric: %d vs %d", b.Total, rev.Total)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	got := match.Tokenize("La cartera NEGRA, de piel; con 2 tarjetas!")
	want := []string{"cartera", "negra", "piel", "tarjetas"}
	for _, w := range want {
		if _, ok := got[w]; !ok {
			t.Errorf("Tokenize() missing %q, got %v", w, got)
		}
	}
	for _, w := range []string{"la", "de", "con", "2"} {
		if _, ok := got[w]; ok {
			t.Errorf("Tokenize() should drop %q", w)
		}
	}
}
