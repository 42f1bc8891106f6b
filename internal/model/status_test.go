// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_TextRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusSkipped} {
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var got Status
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, s, got)
	}

	var s Status
	assert.Error(t, s.UnmarshalText([]byte("exploded")))
	assert.Equal(t, "status(9)", Status(9).String())
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusSuccess.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusSkipped.IsTerminal())
}

func TestResultString(t *testing.T) {
	testCases := []struct {
		status     Status
		withIssues bool
		canceled   bool
		want       string
	}{
		{StatusSuccess, false, false, ResultSucceeded},
		{StatusSuccess, true, false, ResultSucceededWithIssues},
		{StatusFailed, false, false, ResultFailed},
		{StatusFailed, true, false, ResultSucceededWithIssues},
		{StatusSkipped, false, false, ResultSkipped},
		{StatusSkipped, false, true, ResultCanceled},
		{StatusRunning, false, false, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.want+"/"+tc.status.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, ResultString(tc.status, tc.withIssues, tc.canceled))
		})
	}
}

func TestExecutionResult_FailedNodes(t *testing.T) {
	res := &ExecutionResult{Stages: []StageResult{
		{Name: "build", Status: StatusFailed, Jobs: []JobResult{
			{Name: "a", Status: StatusFailed},
			{Name: "b", Status: StatusFailed, ContinueOnError: true},
			{Name: "c", Status: StatusSuccess},
		}},
		{Name: "gate", Status: StatusFailed},
		{Name: "deploy", Status: StatusSkipped, Jobs: []JobResult{{Name: "d", Status: StatusSkipped}}},
	}}

	assert.Equal(t, []string{"build.a", "gate"}, res.FailedNodes())

	jr, ok := res.Job("build", "c")
	require.True(t, ok)
	assert.Equal(t, ResultSucceeded, jr.Result())
	_, ok = res.Job("nope", "c")
	assert.False(t, ok)
}
