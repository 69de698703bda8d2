package models

// User identifies any account. The login exchange does not return an
// email, so it is empty for users restored from a login.
type User struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type ChatUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Auth

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Students

type Student struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Courses     []string `json:"courses"`
	PhoneNumber string   `json:"phoneNumber"`
	DateOfBirth Date     `json:"dateOfBirth"`
}

type CreateStudentRequest struct {
	Name        string   `json:"name" validate:"required"`
	Courses     []string `json:"courses" validate:"required,min=1,unique,dive,course"`
	PhoneNumber string   `json:"phoneNumber" validate:"required,phone"`
	DateOfBirth Date     `json:"dateOfBirth" validate:"required"`
}

type UpdateStudentRequest CreateStudentRequest

// Student builds the record the server is expected to hold for r.
func (r CreateStudentRequest) Student(id string) Student {
	return Student{
		ID:          id,
		Name:        r.Name,
		Courses:     append([]string(nil), r.Courses...),
		PhoneNumber: r.PhoneNumber,
		DateOfBirth: r.DateOfBirth,
	}
}

func (r UpdateStudentRequest) Student(id string) Student {
	return CreateStudentRequest(r).Student(id)
}

// EditRequest prefills an update form from an existing record.
func (s Student) EditRequest() UpdateStudentRequest {
	return UpdateStudentRequest{
		Name:        s.Name,
		Courses:     append([]string(nil), s.Courses...),
		PhoneNumber: s.PhoneNumber,
		DateOfBirth: s.DateOfBirth,
	}
}

// Chat

// Message is immutable once created except for Read, which the
// receiving side flips from false to true exactly once.
type Message struct {
	ID               string    `json:"id"`
	SenderID         string    `json:"senderId"`
	ReceiverID       string    `json:"receiverId"`
	SenderUsername   string    `json:"senderUsername"`
	ReceiverUsername string    `json:"receiverUsername"`
	Content          string    `json:"content"`
	Timestamp        Timestamp `json:"timestamp"`
	Read             bool      `json:"read"`
}

// Involves reports whether userID is the sender or the receiver of m.
func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

type MessageRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
	Content    string `json:"content" validate:"required"`
}
