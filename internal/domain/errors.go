package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrGameNotFound is returned for an unknown game id.
	ErrGameNotFound = errors.New("game not found")
	// ErrTeamNotFound is returned for an unknown team id or access code.
	ErrTeamNotFound = errors.New("team not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAnswerNotFound indicates a submitted answer ID is not an option of the question.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrParticipantNotFound is returned when a participant id is unknown.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrInvalidState is the kind of every out-of-sequence action.
	ErrInvalidState = errors.New("invalid game state")
	// ErrNoQuestions is returned when starting a game without questions.
	ErrNoQuestions = fmt.Errorf("%w: game has no questions", ErrInvalidState)
	// ErrQuestionClosed is returned for answers to a question that is not the revealed one.
	ErrQuestionClosed = fmt.Errorf("%w: question is not open", ErrInvalidState)
	// ErrCorrectAnswerExists is returned when a question already has a correct answer.
	ErrCorrectAnswerExists = fmt.Errorf("%w: question already has a correct answer", ErrInvalidState)

	// ErrNotActive is returned when no live session exists for the game.
	ErrNotActive = errors.New("game is not active")
	// ErrTimedOut is returned for answers received after the time limit plus grace.
	ErrTimedOut = errors.New("time is up")
	// ErrAlreadyAnswered is returned for a second submission to the same question.
	ErrAlreadyAnswered = errors.New("question already answered")

	// ErrInvalidInput is returned for malformed catalog requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPersistence wraps failures of the storage collaborator.
	ErrPersistence = errors.New("storage failure")
)

// IsNotFound reports whether err is one of the not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGameNotFound) ||
		errors.Is(err, ErrTeamNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrAnswerNotFound) ||
		errors.Is(err, ErrParticipantNotFound)
}
