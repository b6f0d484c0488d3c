package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/planloop/planloop/core"
	"github.com/planloop/planloop/logging"
	"github.com/planloop/planloop/model"
)

// ModelLogging instruments model calls with duration and shape metadata.
func ModelLogging(logger logging.Logger) ModelMiddleware {
	return func(next ModelHandler) ModelHandler {
		return func(ctx context.Context, req model.Request) (*model.Response, error) {
			start := time.Now()
			logger.Debug("middleware.model.start", "messages", len(req.Messages), "capabilities", len(req.Capabilities))

			resp, err := next(ctx, req)
			if err != nil {
				logger.Error("middleware.model.error", "duration_ms", time.Since(start).Milliseconds(), "error", err.Error())
				return nil, err
			}

			logger.Info("middleware.model.complete",
				"duration_ms", time.Since(start).Milliseconds(),
				"capability_calls", len(resp.CapabilityCalls),
			)
			return resp, nil
		}
	}
}

// CapabilityLogging instruments capability calls with duration and outcome.
func CapabilityLogging(logger logging.Logger) CapabilityMiddleware {
	return func(next CapabilityHandler) CapabilityHandler {
		return func(ctx context.Context, call core.CapabilityCall) (string, error) {
			start := time.Now()
			logger.Debug("middleware.capability.start", "capability", call.Name, "call_id", call.ID)

			result, err := next(ctx, call)
			if err != nil {
				logger.Warn("middleware.capability.error",
					"capability", call.Name,
					"call_id", call.ID,
					"duration_ms", time.Since(start).Milliseconds(),
					"error", err.Error(),
				)
				return "", err
			}

			logger.Info("middleware.capability.complete",
				"capability", call.Name,
				"call_id", call.ID,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return result, nil
		}
	}
}

// CacheCapabilityResults short-circuits repeated capability calls whose name
// and arguments are identical, returning the previously computed result
// without invoking downstream stages or the handler. Failed calls are not
// cached. Intended for read-only capabilities; side-effecting capabilities
// should not sit behind this stage.
func CacheCapabilityResults() CapabilityMiddleware {
	var mu sync.Mutex
	cache := make(map[string]string)

	return func(next CapabilityHandler) CapabilityHandler {
		return func(ctx context.Context, call core.CapabilityCall) (string, error) {
			key := call.Name + "\x00" + call.ArgumentsJSON()

			mu.Lock()
			cached, ok := cache[key]
			mu.Unlock()
			if ok {
				return cached, nil
			}

			result, err := next(ctx, call)
			if err != nil {
				return "", err
			}

			mu.Lock()
			cache[key] = result
			mu.Unlock()
			return result, nil
		}
	}
}

// RecoverCapabilityFailures converts downstream handler failures into a
// caller-supplied fallback result instead of propagating the error. The
// fallback text becomes an ordinary capability-result message, so the
// planner sees a user-visible explanation rather than a failed call.
func RecoverCapabilityFailures(fallback func(call core.CapabilityCall, err error) string) CapabilityMiddleware {
	return func(next CapabilityHandler) CapabilityHandler {
		return func(ctx context.Context, call core.CapabilityCall) (string, error) {
			result, err := next(ctx, call)
			if err != nil {
				return fallback(call, err), nil
			}
			return result, nil
		}
	}
}
