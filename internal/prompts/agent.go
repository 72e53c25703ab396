package prompts

// EmptyResponseNudge is injected as a user turn when the model returns
// no content after a tool round. It gives the model one more chance to
// produce a user-visible answer.
const EmptyResponseNudge = "You ran tools but did not answer the user. Please give your answer now."

// EmptyResponseFallback is the user-facing answer returned when the
// model stays silent even after the nudge.
const EmptyResponseFallback = "I worked on your request but could not put together an answer. Please try again."
