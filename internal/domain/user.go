package domain

import "time"

// User is the single account record. Email is unique (email-index GSI) and
// immutable after creation; the record is also addressable by its generated
// user_id, which is the subject of every issued token.
type User struct {
	UserID         string    `json:"id" dynamodbav:"user_id"`
	Email          string    `json:"email" dynamodbav:"email"`
	Username       string    `json:"username" dynamodbav:"username"`
	PasswordHash   string    `json:"-" dynamodbav:"password_hash"`
	EmailVerified  bool      `json:"email_verified" dynamodbav:"email_verified"`
	PendingOTP     *int      `json:"-" dynamodbav:"pending_otp"`
	ProfileImage   string    `json:"profile_image" dynamodbav:"profile_image"`
	ResetRequested bool      `json:"-" dynamodbav:"reset_requested"`
	Version        int64     `json:"-" dynamodbav:"version"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}

type RegisterRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Username     string `json:"username" validate:"required,min=3,max=20"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	ProfileImage string `json:"profileImage"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type VerifyOTPRequest struct {
	OTP int `json:"otp" validate:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyResetOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   int    `json:"otp" validate:"required"`
}

type ResetPasswordRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type ChangePasswordRequest struct {
	Password    string `json:"password" validate:"required,min=8,max=72"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

// Profile is the subset of the user record exposed on the profile endpoint.
type Profile struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	ProfileImage  string `json:"profile_image"`
}
