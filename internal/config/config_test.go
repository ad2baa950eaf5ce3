package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"1024", 1024},
		{"50MB", 50 * 1024 * 1024},
		{"50mb", 50 * 1024 * 1024},
		{" 2 GB ", 2 * 1024 * 1024 * 1024},
		{"1TB", 1024 * 1024 * 1024 * 1024},
		{"512KB", 512 * 1024},
		{"100B", 100},
		{"1.5MB", int64(1.5 * 1024 * 1024)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseSize(tt.input))
		})
	}
}

func TestParseSizeFallsBackOnUnparsableValues(t *testing.T) {
	for _, input := range []string{"", "not-a-size", "-5MB", "0", "-42", "MB"} {
		assert.Equal(t, int64(DefaultMaxFileSize), ParseSize(input), "input %q", input)
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512B", FormatSize(512))
	assert.Equal(t, "1.0KB", FormatSize(1024))
	assert.Equal(t, "50.0MB", FormatSize(50*1024*1024))
	assert.Equal(t, "1.5GB", FormatSize(int64(1.5*1024*1024*1024)))
	// Sizes past the unit table stay in the largest unit.
	assert.Equal(t, "2048.0TB", FormatSize(2048*1024*1024*1024*1024))
}

func TestLoadConfigUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "evidence:parse", cfg.QueueName)
	assert.Equal(t, int64(DefaultMaxFileSize), cfg.MaxFileSize)
	assert.Equal(t, 10, cfg.MaxFilesPerRequest)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.NotEmpty(t, cfg.SupportedFormats)
}

func TestLoadConfigHonorsEnvironment(t *testing.T) {
	t.Setenv("MAX_FILE_SIZE", "10MB")
	t.Setenv("MAX_WORKERS", "8")
	t.Setenv("SUPPORTED_FORMATS", "txt,png,xlsx")
	t.Setenv("TESSDATA_PREFIX", "/usr/share/tessdata")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, int64(10*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, 8, cfg.MaxWorkers)
	assert.Equal(t, []string{"txt", "png", "xlsx"}, cfg.SupportedFormats)
	assert.Equal(t, "/usr/share/tessdata", cfg.TessdataPrefix)
}

func TestValidateRejectsBadWorkerCount(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	cfg.MaxWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg.MaxWorkers = 101
	assert.Error(t, cfg.Validate())
}
