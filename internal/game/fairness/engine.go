package fairness

import "go.uber.org/zap"

// Draw is the result of rolling a seed pair against a table.
type Draw struct {
	Result  RollResult
	Index   int
	Outcome Outcome
}

// Engine wraps a Source and logger to provide logged seed generation and rolls.
// All rolls are logged at debug level with the commitment, client seed, nonce,
// digest slice, value and resolved item. Server seeds are never logged.
type Engine struct {
	src    Source
	logger *zap.Logger
}

// NewEngine creates an Engine that generates seeds with src and logs to logger.
//
// Precondition: src and logger must be non-nil.
func NewEngine(src Source, logger *zap.Logger) *Engine {
	return &Engine{src: src, logger: logger}
}

// ClientSeed returns a freshly generated client seed.
func (e *Engine) ClientSeed() string {
	return GenerateClientSeed(e.src)
}

// ServerSeed returns a freshly generated server seed and its commitment.
func (e *Engine) ServerSeed() (seed, commitment string) {
	seed = GenerateServerSeed(e.src)
	return seed, Commit(seed)
}

// Roll derives the roll for the seed pair and nonce, resolves it against
// table and logs the result.
//
// Precondition: table must be non-nil.
// Postcondition: Returns the Draw, or an error if resolution fails.
func (e *Engine) Roll(serverSeed, clientSeed string, nonce uint64, table *Table) (Draw, error) {
	result := Evaluate(serverSeed, clientSeed, nonce)
	idx, err := table.ResolveIndex(result.Value)
	if err != nil {
		e.logger.Error("resolving roll",
			zap.String("commitment", Commit(serverSeed)),
			zap.String("client_seed", clientSeed),
			zap.Uint64("nonce", nonce),
			zap.Float64("roll", result.Value),
			zap.Error(err),
		)
		return Draw{}, err
	}
	draw := Draw{Result: result, Index: idx, Outcome: table.outcomes[idx]}
	e.logger.Debug("fair roll",
		zap.String("commitment", Commit(serverSeed)),
		zap.String("client_seed", clientSeed),
		zap.Uint64("nonce", nonce),
		zap.String("slice", result.Digest[:8]),
		zap.Float64("roll", result.Value),
		zap.String("item", draw.Outcome.Item),
	)
	return draw, nil
}
