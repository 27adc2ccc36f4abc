package domain

import "errors"

var (
	// ErrPackNotFound indicates the question pack could not be loaded.
	ErrPackNotFound = errors.New("question pack not found")
	// ErrEmptyPack is returned when a pack holds no questions to duel over.
	ErrEmptyPack = errors.New("question pack has no questions")
)
