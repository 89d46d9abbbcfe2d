package routes

import (
	"salonpro-reminders/config"
	"salonpro-reminders/controllers"
	"salonpro-reminders/utils"

	"github.com/gin-gonic/gin"
)

func SetupRouter(rc *controllers.ReminderController, jwtSecret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(config.PerformanceLogger())

	r.GET("/ops/health", rc.Health)

	ops := r.Group("/ops")
	ops.Use(utils.AuthMiddleware(jwtSecret))
	{
		// Reminder routes
		reminders := ops.Group("/reminders")
		{
			reminders.POST("/run", rc.RunCycle)
			reminders.POST("/scheduled", rc.ScheduleReminder)
			reminders.GET("/sent", rc.GetSentReminders)
			reminders.GET("/stats", rc.GetDashboardOverview)
			reminders.GET("/:id", rc.GetReminder)
		}

		ops.GET("/appointments/:id/reminders", rc.GetAppointmentReminders)
		ops.PUT("/locations/:id/templates/:kind", rc.SaveTemplate)
	}

	return r
}
