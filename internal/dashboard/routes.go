package dashboard

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/foundry/internal/models"
	"github.com/zulandar/foundry/internal/store"
)

const defaultEventLimit = 20

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB) {
	router.GET("/healthz", handleHealth())
	router.GET("/api/fleet", handleFleet(db))
	router.GET("/api/builders", handleBuilderList(db))
	router.GET("/api/builders/:name", handleBuilderDetail(db))
	router.GET("/api/jobs", handleJobList(db))
	router.GET("/api/events", handleEventList(db))
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// handleFleet returns aggregate counts for the whole fleet.
func handleFleet(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		builders, err := store.Builders(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		okCount, busy := 0, 0
		for _, b := range builders {
			if b.OK {
				okCount++
			}
			if b.CurrentJob != "" {
				busy++
			}
		}

		queue := gin.H{}
		for _, status := range []string{models.JobWaiting, models.JobRunning, models.JobCancelling} {
			jobs, err := store.Jobs(db, status)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			queue[status] = len(jobs)
		}

		c.JSON(http.StatusOK, gin.H{
			"builders": gin.H{
				"total":    len(builders),
				"ok":       okCount,
				"disabled": len(builders) - okCount,
				"building": busy,
			},
			"queue": queue,
		})
	}
}

func handleBuilderList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		builders, err := store.Builders(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, builders)
	}
}

// handleBuilderDetail returns one builder with its recent event history.
func handleBuilderDetail(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		b, err := store.Builder(db, name)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown builder"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		events, err := store.Events(db, name, defaultEventLimit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"builder": b, "events": events})
	}
}

// handleEventList returns recent events across the fleet, newest first,
// optionally filtered by ?builder=.
func handleEventList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := store.Events(db, c.Query("builder"), defaultEventLimit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

// handleJobList returns jobs, optionally filtered by ?status=.
func handleJobList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobs, err := store.Jobs(db, c.Query("status"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, jobs)
	}
}
