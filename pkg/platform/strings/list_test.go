package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "blank", raw: "  ", want: nil},
		{name: "single broker", raw: "localhost:9092", want: []string{"localhost:9092"}},
		{name: "trims entries", raw: " kafka-1:9092 ,kafka-2:9092 ", want: []string{"kafka-1:9092", "kafka-2:9092"}},
		{name: "drops empty entries", raw: "kafka-1:9092,,", want: []string{"kafka-1:9092"}},
		{name: "keeps first occurrence", raw: "b:1,a:1,b:1", want: []string{"b:1", "a:1"}},
		{name: "case sensitive", raw: "Kafka,kafka", want: []string{"Kafka", "kafka"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.raw, ","))
		})
	}
}
