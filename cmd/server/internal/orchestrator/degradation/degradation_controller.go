// Package degradation provides automatic service degradation and recovery for
// the audio enhancement stage. It monitors health status and switches between
// the HTTP enhancer and the passthrough fallback.
package degradation

import (
	"log"
	"sync"

	"github.com/callytics/callytics/cmd/server/internal/orchestrator/audioproc"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/health"
)

// DegradationController manages the active enhancer implementation based on
// health status. It automatically switches between a primary enhancer (the
// denoising HTTP service) and a fallback (PassthroughEnhancer) so runs keep
// completing when the service is down.
//
// Thread-safety: All public methods are thread-safe via sync.RWMutex.
type DegradationController struct {
	primaryEnhancer  audioproc.Enhancer    // Preferred enhancer (HTTPEnhancer)
	fallbackEnhancer audioproc.Enhancer    // Fallback enhancer (PassthroughEnhancer)
	healthChecker    *health.HealthChecker // Monitors primary enhancer health
	currentEnhancer  audioproc.Enhancer    // Currently active enhancer (protected by mu)
	mu               sync.RWMutex          // Protects currentEnhancer and isDegraded
	isDegraded       bool                  // True if currently using fallback (protected by mu)
}

// NewDegradationController creates a new DegradationController with the specified enhancers.
//
// Parameters:
//   - primary: The preferred enhancer implementation (must not be nil)
//   - fallback: The fallback enhancer (typically PassthroughEnhancer, must not be nil)
//   - hc: The health checker monitoring the primary enhancer (must not be nil)
//
// Initial state: Uses primary enhancer (optimistic assumption of health).
func NewDegradationController(
	primary audioproc.Enhancer,
	fallback audioproc.Enhancer,
	hc *health.HealthChecker,
) *DegradationController {
	return &DegradationController{
		primaryEnhancer:  primary,
		fallbackEnhancer: fallback,
		healthChecker:    hc,
		currentEnhancer:  primary, // Start with primary
		isDegraded:       false,
	}
}

// GetEnhancer returns the current active enhancer, automatically switching
// between primary and fallback based on health status.
//
// Behavior:
//   - Queries health checker for latest status
//   - If unhealthy and not degraded: switches to fallback, logs WARN
//   - If healthy and degraded: switches back to primary, logs INFO
//   - If status unchanged: returns current enhancer without logging
func (dc *DegradationController) GetEnhancer() audioproc.Enhancer {
	status := dc.healthChecker.GetStatus()

	dc.mu.Lock()
	defer dc.mu.Unlock()

	// Check if degradation is needed (unhealthy and not yet degraded)
	if !status.IsHealthy && !dc.isDegraded {
		log.Printf("[WARN] DegradationController: Degrading to fallback enhancer (%s) due to unhealthy primary (%s)",
			dc.fallbackEnhancer.Name(), dc.primaryEnhancer.Name())
		dc.currentEnhancer = dc.fallbackEnhancer
		dc.isDegraded = true
	}

	// Check if recovery is possible (healthy and currently degraded)
	if status.IsHealthy && dc.isDegraded {
		log.Printf("[INFO] DegradationController: Recovering to primary enhancer (%s)",
			dc.primaryEnhancer.Name())
		dc.currentEnhancer = dc.primaryEnhancer
		dc.isDegraded = false
	}

	return dc.currentEnhancer
}

// IsDegraded returns whether the system is currently operating in degraded mode.
// Thread-safe for concurrent access.
func (dc *DegradationController) IsDegraded() bool {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.isDegraded
}
