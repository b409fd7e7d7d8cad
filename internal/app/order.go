package app

import (
	"hash/fnv"
	"math/rand"

	"assessment-engine/internal/domain"
)

// snapshotOrder derives the question and option order for an attempt. The seed comes from the
// attempt ID, so the order is stable for the attempt and unrelated across learners.
func snapshotOrder(quiz domain.QuizDefinition, attemptID string) ([]string, map[string][]string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(attemptID))
	rnd := rand.New(rand.NewSource(int64(h.Sum64())))

	questions := make([]string, len(quiz.Questions))
	for i, q := range quiz.Questions {
		questions[i] = q.ID
	}
	if quiz.ShuffleQuestions {
		rnd.Shuffle(len(questions), func(i, j int) { questions[i], questions[j] = questions[j], questions[i] })
	}

	options := make(map[string][]string, len(quiz.Questions))
	for _, q := range quiz.Questions {
		if !q.Kind.UsesOptions() {
			continue
		}
		ids := make([]string, len(q.Options))
		for i, opt := range q.Options {
			ids[i] = opt.ID
		}
		// ordering items are authored in answer order, so they are always shuffled
		if quiz.ShuffleOptions || q.Kind == domain.KindOrdering {
			rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		}
		options[q.ID] = ids
	}
	return questions, options
}
