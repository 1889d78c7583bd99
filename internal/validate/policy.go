package validate

// DefaultPolicy holds the form rules. Each rule adds a user-facing message to
// deny; an empty set means the form may be submitted.
const DefaultPolicy = `
package marketa.validate

required = {
	"signup": ["username", "name", "email", "password"],
	"login": ["email", "password"],
	"campaign": ["campaign_name", "status"],
	"profile": ["name", "username", "email"],
	"brand": ["brand_name", "product_description", "target_audience"],
}

labels = {
	"username": "Username",
	"name": "Name",
	"email": "Email",
	"password": "Password",
	"campaign_name": "Campaign name",
	"status": "Status",
	"brand_name": "Brand name",
	"product_description": "Product description",
	"target_audience": "Target audience",
}

email_kinds = {"signup", "login", "profile"}

email_pattern = "^[^@\\s]+@[^@\\s]+\\.[^@\\s]+$"

picture_types = {"image/jpeg", "image/png", "image/gif", "image/webp"}

max_picture_bytes = 5242880

blank(s) {
	trim_space(s) == ""
}

deny[msg] {
	field := required[input.kind][_]
	blank(object.get(input.fields, field, ""))
	msg := sprintf("%s is required", [labels[field]])
}

deny["Email address is not valid"] {
	email_kinds[input.kind]
	email := object.get(input.fields, "email", "")
	not blank(email)
	not regex.match(email_pattern, email)
}

deny["Budget must not be negative"] {
	input.kind == "campaign"
	input.fields.budget < 0
}

deny["End date must not be before start date"] {
	input.kind == "campaign"
	input.fields.start_date != ""
	input.fields.end_date != ""
	time.parse_rfc3339_ns(input.fields.end_date) < time.parse_rfc3339_ns(input.fields.start_date)
}

deny["Please upload a valid image (JPEG, PNG, GIF, or WebP)"] {
	input.kind == "profile_picture"
	not picture_types[input.fields.content_type]
}

deny["Image size must be less than 5MB"] {
	input.kind == "profile_picture"
	input.fields.size > max_picture_bytes
}
`
