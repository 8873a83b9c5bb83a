package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultFraming(t *testing.T) {
	want := "<|start_header_id|>system<|end_header_id|>\nBe terse.\n" +
		"<|start_header_id|>user<|end_header_id|>\nFix this.\n" +
		"<|eot_id|><|start_header_id|>assistant<|end_header_id|>\n\n"
	assert.Equal(t, want, DefaultFraming.Format("Be terse.", "Fix this."))
}

func TestLegacyFraming(t *testing.T) {
	want := "<|start_header_id|>system<|end_header_id|>\nBe terse.\n" +
		"<|start_header><header_id|>user<|end_header_id|>\nFix this.\n" +
		"<|eot_id|><|start_header_id|>assistant<|end_header_id|>\n\n"
	assert.Equal(t, want, LegacyFraming.Format("Be terse.", "Fix this."))
}
