package smtp

import (
	"context"
	"fmt"
)

const otpSubject = "Email Verification"

// otpBodyHTML is the verification email template; the single %d is the code.
const otpBodyHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Email Verification Code</title>
</head>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 0;">
  <div style="max-width: 600px; margin: 20px auto; background-color: #ffffff; padding: 20px; border-radius: 8px;">
    <h2 style="text-align: center;">Email Verification Code</h2>
    <p>Dear User,</p>
    <p>Your email verification code is:</p>
    <p style="font-size: 24px; font-weight: bold; color: #007bff;">%d</p>
    <p style="text-align: center; color: #555555;">Thank you for using our service.</p>
  </div>
</body>
</html>
`

// OTPNotifier delivers one-time codes over email.
type OTPNotifier struct {
	mailer Mailer
}

func NewOTPNotifier(mailer Mailer) *OTPNotifier {
	return &OTPNotifier{mailer: mailer}
}

func (n *OTPNotifier) Deliver(_ context.Context, email string, code int) error {
	return n.mailer.SendEmail(email, otpSubject, fmt.Sprintf(otpBodyHTML, code))
}
