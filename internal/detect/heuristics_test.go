package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingApprovalDetectsCodexPrompt(t *testing.T) {
	text := "Would you like to run the following command?\n" +
		"Reason: make install needs to write Go build cache outside the workspace.\n" +
		"$ make install\n" +
		"1. Yes, proceed (y)\n" +
		"2. Yes, and don't ask again for commands that start with 'make install' (p)\n" +
		"3. No, and tell Codex what to do differently (esc)\n"
	assert.True(t, IsPendingApproval(text))

	state, ok := Defaults().Classify(text)
	require.True(t, ok)
	assert.Equal(t, StatePendingApproval, state, "approval prompt should win precedence")
}

func TestWaitingInputTrueForQuestionWithPrompt(t *testing.T) {
	text := "• Hi! How can I help with orbis today?\n> "
	assert.True(t, Defaults().IsWaitingInput(text))
}

func TestWaitingInputFalseForWrapupWithPrompt(t *testing.T) {
	text := "• Cleanup done.\n" +
		"\n" +
		"  - Deleted the Codex test logs from today: IDs 680–685.\n" +
		"  - Trimmed the one full-format working memory log that still had Resume/Worklog: ID 671.\n" +
		"\n" +
		"  Now the only session logs from today are the real ones (IDs 671, 666, 660, 651, 646, 635, 610)\n" +
		"  and they’re all in the trimmed core-section format.\n" +
		"\n" +
		"  If you want me to shorten any of those further, say which IDs to trim or delete.\n" +
		"> "
	assert.False(t, Defaults().IsWaitingInput(text))
}

func TestWaitingInputFalseForLogObservationPrompt(t *testing.T) {
	text := "• Logged it as observation #706 (session_log, global / session-log).\n" +
		"  If you want me to adjust or trim anything in that log, say the word.\n" +
		"> "
	assert.False(t, Defaults().IsWaitingInput(text))
}

func TestWaitingInputTrueForNumberedListPickOne(t *testing.T) {
	text := "• If you’re good with the behavior, next steps are optional:\n" +
		"\n" +
		"  1. Run a slightly longer Codex session (a real change) to confirm the summaries capture edits/tests/issues.\n" +
		"  2. Decide if you want recent output to be paged or limited by max bytes (since it now prints full content).\n" +
		"  3. If you want me to add a test for the new short-session fallback, I can do that.\n" +
		"\n" +
		"  Pick one, or tell me what else you want to tackle.\n" +
		"> "
	assert.True(t, Defaults().IsWaitingInput(text))

	state, ok := Defaults().Classify(text)
	require.True(t, ok)
	assert.Equal(t, StateWaitingInput, state)
}

func TestIdleForNumberedListWithoutPromptingLanguage(t *testing.T) {
	text := "• Next steps:\n" +
		"\n" +
		"  1. Run a slightly longer Codex session.\n" +
		"  2. Decide if you want recent output to be paged.\n" +
		"  3. Add a test for the short-session fallback.\n" +
		"> "
	assert.False(t, Defaults().IsWaitingInput(text))

	state, ok := Defaults().Classify(text)
	require.True(t, ok)
	assert.Equal(t, StateIdle, state)
}

func TestWaitingInputForTellMeWhatNext(t *testing.T) {
	text := "• Let me know what you want to tackle next.\n> "
	assert.True(t, Defaults().IsWaitingInput(text))

	state, ok := Defaults().Classify(text)
	require.True(t, ok)
	assert.Equal(t, StateWaitingInput, state)
}

func TestWaitingInputForPromptOnly(t *testing.T) {
	text := "> "
	assert.True(t, Defaults().IsWaitingInput(text))

	state, ok := Defaults().Classify(text)
	require.True(t, ok)
	assert.Equal(t, StateWaitingInput, state)
}

func TestIdleForPoliteWrapupWithPromptSymbolInLine(t *testing.T) {
	text := "• Hi! If you need anything later, just let me know. › Write tests for @filename 100% context left · ? for shortcuts"
	assert.False(t, Defaults().IsWaitingInput(text))

	state, ok := Defaults().Classify(text)
	require.True(t, ok)
	assert.Equal(t, StateIdle, state)
}

func TestIdleWhenPreviousQuestionInTailButLatestIsWrapup(t *testing.T) {
	text := "• Hi! How can I help? › Summarize recent commits 100% context left · ? for shortcuts\n" +
		"• Hi! 👋 If you need anything later, I’m here. › Summarize recent commits 100% context left · ? for shortcuts"
	assert.False(t, Defaults().IsWaitingInput(text))

	state, ok := Defaults().Classify(text)
	require.True(t, ok)
	assert.Equal(t, StateIdle, state)
}

func TestApprovalDetectionWithANSIWrapping(t *testing.T) {
	text := "\x1b[1mWould you like to run the following command?\x1b[0m\n" +
		"Reason: make install needs to write Go build cache outside the workspace.\n" +
		"$ make install\n" +
		"1. Yes, proceed (y)\n" +
		"2. Yes, and don't ask again for commands that start with 'make install' (p)\n" +
		"3. No, and tell Codex what to do differently (esc)\n"
	state, ok := Defaults().Classify(text)
	require.True(t, ok)
	assert.Equal(t, StatePendingApproval, state, "ansi should not break approval detection")
}

func TestApprovalDetectionWithBoxDrawing(t *testing.T) {
	text := "╭────────────────────────────────────────────╮\n" +
		"│ Would you like to run the following command? │\n" +
		"╰────────────────────────────────────────────╯\n" +
		"Reason: make install needs to write Go build cache outside the workspace.\n" +
		"$ make install\n" +
		"1. Yes, proceed (y)\n" +
		"2. Yes, and don't ask again for commands that start with 'make install' (p)\n" +
		"3. No, and tell Codex what to do differently (esc)\n"
	state, ok := Defaults().Classify(text)
	require.True(t, ok)
	assert.Equal(t, StatePendingApproval, state)
}

func TestWorkingStatusLineIsNotAssistantText(t *testing.T) {
	lines := []string{"• Working(0s • esc to interrupt) › Improve documentation 100% context left"}
	_, ok := Defaults().LastAssistantText(lines)
	assert.False(t, ok)
}

func TestLastAssistantTextTruncatesInlineTails(t *testing.T) {
	lines := []string{"• All done here. › Write more tests 100% context left"}
	text, ok := Defaults().LastAssistantText(lines)
	require.True(t, ok)
	assert.Equal(t, "All done here.", text)
}

func TestClassifyAbstainsOnBlankAndAnsiOnly(t *testing.T) {
	_, ok := Defaults().Classify("")
	assert.False(t, ok)

	_, ok = Defaults().Classify("\x1b[2J\x1b[H")
	assert.False(t, ok)
}

func TestClassifyWorkingForPlainOutput(t *testing.T) {
	state, ok := Defaults().Classify("compiling module foo...\nlinking...")
	require.True(t, ok)
	assert.Equal(t, StateWorking, state)
}

func TestWaitingInputForRoleLabelLine(t *testing.T) {
	assert.True(t, Defaults().IsWaitingInput("some transcript\nYou:"))
	assert.True(t, Defaults().IsWaitingInput("some transcript\nUser:"))
}
