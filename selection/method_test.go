package selection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		kind, color string
		want        Method
		wantErr     bool
	}{
		{"cover", "", Cover{Color: "#FFFFFF"}, false},
		{"", "", Cover{Color: "#FFFFFF"}, false},
		{"COVER", "#00ff00", Cover{Color: "#00FF00"}, false},
		{"delete", "#123456", Delete{}, false},
		{"inpaint", "", Inpaint{}, false},
		{"blur", "", nil, true},
		{"cover", "not-a-colour", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.color, func(t *testing.T) {
			m, err := ParseMethod(tt.kind, tt.color)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m)
		})
	}
}

func TestNormalizeColor(t *testing.T) {
	for in, want := range map[string]string{
		"#ffffff":   "#FFFFFF",
		"ffffff":    "#FFFFFF",
		"#abc":      "#AABBCC",
		" #0a0B0c ": "#0A0B0C",
	} {
		got, err := NormalizeColor(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := NormalizeColor("")
	assert.Error(t, err)
	_, err = NormalizeColor("#ggg")
	assert.Error(t, err)
}

func TestBBoxGeometry(t *testing.T) {
	b := BBox{X: 200, Y: 150, Width: -150, Height: -100}.Normalize()
	assert.Equal(t, BBox{X: 50, Y: 50, Width: 150, Height: 100}, b)
	assert.True(t, b.Valid())

	assert.True(t, b.Contains(50, 50))
	assert.True(t, b.Contains(120, 80))
	assert.False(t, b.Contains(49, 80))
	assert.False(t, b.Contains(120, 151))

	assert.Equal(t, BBox{X: 25, Y: 25, Width: 75, Height: 50}, b.Scale(0.5))
}

func TestBBoxJSON(t *testing.T) {
	var b BBox
	require.NoError(t, json.Unmarshal([]byte(`[1,2,3,4]`), &b))
	assert.Equal(t, BBox{X: 1, Y: 2, Width: 3, Height: 4}, b)

	assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), &b))
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &b))
}
