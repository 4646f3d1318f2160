package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey holds the JTI of a user's current login.
func (r *CacheKeyStruct) UserSessionKey(userID uuid.UUID) string {
	return fmt.Sprintf("login:%s", userID)
}

// QuizDefinitionKey holds the cached JSON definition of a quiz.
func (r *CacheKeyStruct) QuizDefinitionKey(quizID uuid.UUID) string {
	return fmt.Sprintf("quiz:%s:definition", quizID)
}

// QuizRoomChannel is the Redis PubSub channel for presence events of a quiz.
func (r *CacheKeyStruct) QuizRoomChannel(quizID uuid.UUID) string {
	return fmt.Sprintf("quiz:%s:room", quizID)
}

var CacheKey = NewCacheKeyStruct()
