// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRcon struct {
	results []error
	handled bool
	calls   int
	command string
	args    []string
}

func (s *scriptedRcon) Rcon(_ context.Context, command string, args ...string) (bool, error) {
	s.command = command
	s.args = args
	i := s.calls
	s.calls++
	if i < len(s.results) && s.results[i] != nil {
		return false, s.results[i]
	}
	return s.handled, nil
}

func rconCmd() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func unreachable() error {
	return oops.Code("CONTROL_UNREACHABLE").Errorf("dial unix: connection refused")
}

func TestRunRcon_Handled(t *testing.T) {
	cmd, out := rconCmd()
	client := &scriptedRcon{handled: true}

	err := runRcon(cmd, &rconConfig{retries: 0, timeout: time.Second}, client, []string{"reload", "acme/*"})
	require.NoError(t, err)
	assert.Equal(t, "reload", client.command)
	assert.Equal(t, []string{"acme/*"}, client.args)
	assert.Contains(t, out.String(), "ok")
}

func TestRunRcon_NotHandled(t *testing.T) {
	cmd, out := rconCmd()

	err := runRcon(cmd, &rconConfig{timeout: time.Second}, &scriptedRcon{}, []string{"status"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "command not handled")
}

func TestRunRcon_RetriesWhileUnreachable(t *testing.T) {
	cmd, _ := rconCmd()
	client := &scriptedRcon{handled: true, results: []error{unreachable(), unreachable()}}

	err := runRcon(cmd, &rconConfig{retries: 3, timeout: 5 * time.Second}, client, []string{"reload"})
	require.NoError(t, err)
	assert.Equal(t, 3, client.calls)
}

func TestRunRcon_GivesUpAfterRetries(t *testing.T) {
	cmd, _ := rconCmd()
	client := &scriptedRcon{results: []error{unreachable(), unreachable(), unreachable()}}

	err := runRcon(cmd, &rconConfig{retries: 1, timeout: 5 * time.Second}, client, []string{"reload"})
	require.Error(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestRunRcon_OtherErrorsAreNotRetried(t *testing.T) {
	cmd, _ := rconCmd()
	client := &scriptedRcon{results: []error{errors.New("bad request")}}

	err := runRcon(cmd, &rconConfig{retries: 3, timeout: 5 * time.Second}, client, []string{"reload"})
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
}
