package domain

// Profile is the per-user record created at sign-up. Its ID matches the
// authenticated identity.
type Profile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	RoomNumber   string `json:"room_number,omitempty"`
	AcademicYear string `json:"academic_year,omitempty"`
	UPIID        string `json:"upi_id,omitempty"`
}

// BestPhone returns whichever phone column is populated. Older profiles
// stored the number under phone, newer ones under phone_number.
func (p Profile) BestPhone() string {
	if p.PhoneNumber != "" {
		return p.PhoneNumber
	}
	return p.Phone
}
