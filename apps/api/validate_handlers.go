package main

import (
	"net/http"

	"negrostrees/libs/healthdist"
	"negrostrees/libs/validate"

	"github.com/gin-gonic/gin"
)

func (a *App) validateHealthHandler(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	result := healthdist.ReconcileRaw(
		fields["population"],
		fields["healthy_count"],
		fields["good_count"],
		fields["bad_count"],
		fields["deceased_count"],
	)
	var form healthdist.Form
	healthdist.Apply(result, &form)

	response := gin.H{"success": true, "result": result, "form": form}
	if result.Total > 0 {
		response["derived_health_status"] = healthdist.DeriveStatus(healthdist.Counts{
			Healthy:  healthdist.ParseCount(fields["healthy_count"]),
			Good:     healthdist.ParseCount(fields["good_count"]),
			Bad:      healthdist.ParseCount(fields["bad_count"]),
			Deceased: healthdist.ParseCount(fields["deceased_count"]),
		})
	}
	c.JSON(http.StatusOK, response)
}

func (a *App) validateFieldsHandler(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	errs := validate.Fields(fields)
	c.JSON(http.StatusOK, gin.H{"success": true, "valid": len(errs) == 0, "errors": errs})
}
