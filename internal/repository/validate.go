package repository

import (
	"github.com/cronkit/scheduler/internal/apperror"
	"github.com/cronkit/scheduler/internal/cronexpr"
	"github.com/cronkit/scheduler/internal/model"
)

// ValidateCreate mirrors spec §3's field constraints for a brand-new job.
func ValidateCreate(input model.CreateJobInput) error {
	var details []apperror.FieldDetail

	if input.Name == "" || len(input.Name) > model.MaxNameLength {
		details = append(details, apperror.FieldDetail{
			Field: "name", Message: "must be non-empty and at most 255 characters", RejectedValue: input.Name,
		})
	}
	if len(input.Description) > model.MaxDescriptionLength {
		details = append(details, apperror.FieldDetail{
			Field: "description", Message: "must be at most 1000 characters", RejectedValue: input.Description,
		})
	}
	if !cronexpr.Validate(input.CronExpression) {
		details = append(details, apperror.FieldDetail{
			Field: "cronExpression", Message: "must be a valid 5-field cron expression", RejectedValue: input.CronExpression,
		})
	}
	if input.JobType != "" && !input.JobType.Valid() {
		details = append(details, apperror.FieldDetail{
			Field: "jobType", Message: "must be one of scheduled, immediate, recurring, delayed", RejectedValue: input.JobType,
		})
	}
	if len(input.CreatedBy) > model.MaxCreatedByLength {
		details = append(details, apperror.FieldDetail{
			Field: "createdBy", Message: "must be at most 255 characters", RejectedValue: input.CreatedBy,
		})
	}
	if timeoutMS := orDefault(input.TimeoutMS, model.DefaultTimeoutMS); timeoutMS < model.MinTimeoutMS || timeoutMS > model.MaxTimeoutMS {
		details = append(details, apperror.FieldDetail{
			Field: "timeoutMs", Message: "must be between 1000 and 300000", RejectedValue: input.TimeoutMS,
		})
	}
	if input.MaxRetries < model.MinRetries || input.MaxRetries > model.MaxRetries {
		details = append(details, apperror.FieldDetail{
			Field: "maxRetries", Message: "must be between 0 and 10", RejectedValue: input.MaxRetries,
		})
	}
	if retryDelay := orDefault(input.RetryDelayMS, model.DefaultRetryDelayMS); retryDelay < model.MinRetryDelayMS || retryDelay > model.MaxRetryDelayMS {
		details = append(details, apperror.FieldDetail{
			Field: "retryDelayMs", Message: "must be between 1000 and 60000", RejectedValue: input.RetryDelayMS,
		})
	}
	details = append(details, validateTags(input.Tags)...)

	if len(details) > 0 {
		return apperror.Validation("job validation failed", details...)
	}
	return nil
}

// ValidateJob re-validates a fully-merged job (used after applying a patch).
func ValidateJob(j model.Job) error {
	return ValidateCreate(model.CreateJobInput{
		Name:           j.Name,
		Description:    j.Description,
		CronExpression: j.CronExpression,
		JobType:        j.JobType,
		TimeoutMS:      j.TimeoutMS,
		MaxRetries:     j.MaxRetries,
		RetryDelayMS:   j.RetryDelayMS,
		CreatedBy:      j.CreatedBy,
		Tags:           j.Tags,
	})
}

func validateTags(tags []string) []apperror.FieldDetail {
	var details []apperror.FieldDetail
	if len(tags) > model.MaxTagCount {
		details = append(details, apperror.FieldDetail{
			Field: "tags", Message: "at most 10 tags are allowed", RejectedValue: tags,
		})
	}
	for _, t := range tags {
		if len(t) > model.MaxTagLength {
			details = append(details, apperror.FieldDetail{
				Field: "tags", Message: "each tag must be at most 50 characters", RejectedValue: t,
			})
			break
		}
	}
	return details
}
