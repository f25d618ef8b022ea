package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport() *statusReport {
	return &statusReport{
		Country:         "China",
		Documents:       120,
		Mentions:        340,
		Clusters:        25,
		PendingReview:   3,
		CanonicalEvents: 18,
		MasterEvents:    2,
		LinkedEvents:    5,
	}
}

func TestWriteStatusReport_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeStatusReport(&buf, sampleReport(), "text"))

	out := buf.String()
	assert.Contains(t, out, "China")
	assert.Contains(t, out, "pending review")
	assert.Contains(t, out, "340")
}

func TestWriteStatusReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeStatusReport(&buf, sampleReport(), "json"))

	var decoded statusReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, *sampleReport(), decoded)
}

func TestWriteStatusReport_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeStatusReport(&buf, sampleReport(), "yaml"))

	var decoded statusReport
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, *sampleReport(), decoded)
}

func TestWriteStatusReport_UnknownFormat(t *testing.T) {
	err := writeStatusReport(&bytes.Buffer{}, sampleReport(), "xml")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "xml"))
}

func TestBuildStatusReport(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	counts := []int64{120, 340, 25, 3, 18, 2, 5, 13}
	for _, n := range counts {
		mock.ExpectQuery(`SELECT count`).
			WithArgs("China").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(n))
	}

	report, err := buildStatusReport(context.Background(), mock, "China")
	require.NoError(t, err)

	assert.Equal(t, int64(120), report.Documents)
	assert.Equal(t, int64(3), report.PendingReview)
	assert.Equal(t, int64(13), report.ConsolidateBacklog)
	assert.NoError(t, mock.ExpectationsWereMet())
}
