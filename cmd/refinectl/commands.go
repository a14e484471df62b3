// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
	"github.com/AleutianAI/AleutianRefine/services/engine/memory"
)

var (
	serverURL   string
	askStrategy string
	askMode     string
	askSources  []string
	askEvent    bool
	askVerbose  bool
	sweepHours  int

	rootCmd = &cobra.Command{
		Use:   "refinectl",
		Short: "A CLI for the Aleutian refine engine",
		Long: `refinectl talks to a running refine engine over HTTP. It submits
generation requests, inspects the refinement audit trail, and manages
the session memory store.`,
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Submit a generation request and print the refined answer",
		Long:  `Sends the question through the engine's generate-assess-improve loop and prints the final content along with the strategy decision and outcome.`,
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand,
	}

	// Session Administration commands
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage conversation sessions",
		Long:  `List, inspect, or delete sessions held in the engine's memory store.`,
	}
	listSessionsCmd = &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		Run:   runListSessions,
	}
	sessionHistoryCmd = &cobra.Command{
		Use:   "history [fingerprint]",
		Short: "Print a session's full turn log",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionHistory,
	}
	deleteSessionCmd = &cobra.Command{
		Use:   "delete [fingerprint]",
		Short: "Delete a session and its turns",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteSession,
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Remove sessions idle longer than the retention age",
		Run:   runSweepCommand,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		"http://localhost:9180", "Base URL of the refine engine")

	askCmd.Flags().StringVar(&askStrategy, "strategy", "",
		"Force a retrieval strategy instead of the automatic selection")
	askCmd.Flags().StringVar(&askMode, "memory-mode", "",
		"Memory retrieval mode: recency, lexical, or assisted")
	askCmd.Flags().StringSliceVar(&askSources, "source", nil,
		"Source path forming the session identity (repeatable)")
	askCmd.Flags().BoolVar(&askEvent, "event", false,
		"Request a structured event record alongside the answer")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false,
		"Show the per-iteration critique trail")

	sweepCmd.Flags().IntVar(&sweepHours, "max-age-hours", 0,
		"Override the engine's configured retention age")

	sessionCmd.AddCommand(listSessionsCmd)
	sessionCmd.AddCommand(sessionHistoryCmd)
	sessionCmd.AddCommand(deleteSessionCmd)

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(sweepCmd)
}

func runAskCommand(cmd *cobra.Command, args []string) {
	client := newEngineClient(serverURL)
	question := strings.Join(args, " ")
	fmt.Printf("Asking: %s\n", question)
	fmt.Println("---")

	req := datatypes.ComposeRequest{
		Query:            question,
		SourcePaths:      askSources,
		StrategyOverride: askStrategy,
		MemoryMode:       datatypes.MemoryMode(askMode),
		WantEvent:        askEvent,
	}
	var resp datatypes.ComposeResponse
	if err := client.postJSON("/v1/compose", req, &resp); err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("\nAnswer:\n%s\n", resp.Content)
	fmt.Printf("\nStrategy: %s (%s)\n", resp.Decision.Strategy, resp.Decision.Rationale)
	fmt.Printf("Outcome: %s after %d iteration(s)\n", resp.Outcome, len(resp.Iterations))
	if resp.Degraded {
		fmt.Println("Note: the memory store was unavailable; this exchange was not recorded.")
	}
	if resp.Event != nil {
		fmt.Printf("\nEvent: %s\n  Start: %s\n  End:   %s\n",
			resp.Event.Title, resp.Event.Start, resp.Event.End)
		if len(resp.Event.Contacts) > 0 {
			fmt.Printf("  Contacts: %s\n", strings.Join(resp.Event.Contacts, ", "))
		}
		fmt.Printf("  Validation: %s\n", resp.ValidationPath)
	}
	if askVerbose {
		fmt.Println("\nIterations:")
		for _, it := range resp.Iterations {
			fmt.Printf("%d. improved=%v revision_needed=%v\n   critique: %s\n",
				it.IterationIndex+1, it.WasImproved, it.Assessment.NeedsRevision, it.Assessment.Critique)
		}
	}
	fmt.Println("\n---")
}

func runListSessions(cmd *cobra.Command, args []string) {
	client := newEngineClient(serverURL)
	var resp struct {
		Sessions []memory.Session `json:"sessions"`
		Count    int              `json:"count"`
	}
	if err := client.getJSON("/v1/sessions", &resp); err != nil {
		log.Fatalf("Error: %v", err)
	}
	if resp.Count == 0 {
		fmt.Println("No sessions found.")
		return
	}
	fmt.Printf("%d session(s):\n", resp.Count)
	for _, s := range resp.Sessions {
		fmt.Printf("  %s  updated %s  sources: %s\n",
			s.Fingerprint, s.UpdatedAt.Format("2006-01-02 15:04"), strings.Join(s.IdentitySet, ", "))
	}
}

func runSessionHistory(cmd *cobra.Command, args []string) {
	client := newEngineClient(serverURL)
	var resp struct {
		Session memory.Session `json:"session"`
		Turns   []memory.Turn  `json:"turns"`
	}
	if err := client.getJSON("/v1/sessions/"+args[0]+"/history", &resp); err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Printf("Session %s (%d turns)\n\n", resp.Session.Fingerprint, len(resp.Turns))
	for _, turn := range resp.Turns {
		fmt.Printf("[%s] %s: %s\n", turn.Timestamp.Format("15:04:05"), turn.Role, turn.Content)
	}
}

func runDeleteSession(cmd *cobra.Command, args []string) {
	client := newEngineClient(serverURL)
	if err := client.deleteJSON("/v1/sessions/"+args[0], nil); err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Printf("Deleted session %s\n", args[0])
}

func runSweepCommand(cmd *cobra.Command, args []string) {
	client := newEngineClient(serverURL)
	body := map[string]int{"max_age_hours": sweepHours}
	var resp struct {
		Deleted int `json:"deleted_sessions"`
	}
	if err := client.postJSON("/v1/sweep", body, &resp); err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Printf("Removed %d idle session(s)\n", resp.Deleted)
}
